// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
)

const (
	mqttQoS             = 0
	mqttDisconnectQuiet = 250 // ms
)

// publisher is the part of paho.Client the sink uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTT publishes "roll:pitch:yaw" to {topic}/imu_all, or single values to
// {topic}/imu_{name}, at QoS 0.
type MQTT struct {
	cfg     Config
	client  publisher
	topic   string
	timeout time.Duration
	alive   *alive.Alive
}

// ClientOptionsFromURL creates client options from a broker URL. The URL
// path becomes the topic prefix; a client-id query parameter sets the
// client id.
func ClientOptionsFromURL(brokerURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", errors.NewNotValid(err, "mqtt broker url")
	}
	if u.Host == "" {
		return nil, "", errors.NotValidf("mqtt broker url %q", brokerURL)
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}

	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// NewMQTT connects to the broker in cfg.BrokerURL
func NewMQTT(cfg Config) (*MQTT, error) {
	opts, prefix, err := ClientOptionsFromURL(cfg.BrokerURL)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	opts.SetConnectTimeout(cfg.Timeout).
		SetWriteTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			glog.Warningf("MQTT connection lost: %v", err)
		})

	client := paho.NewClient(opts)
	t := client.Connect()
	if !t.WaitTimeout(cfg.Timeout) {
		return nil, errors.Errorf("mqtt connect %s timeout", cfg.BrokerURL)
	}
	if err := t.Error(); err != nil {
		return nil, errors.Annotatef(err, "mqtt connect %s", cfg.BrokerURL)
	}
	glog.Infof("MQTT connected: %s", cfg.BrokerURL)

	return newMQTT(cfg, client, prefix), nil
}

func newMQTT(cfg Config, client publisher, prefix string) *MQTT {
	topic := cfg.Topic
	if topic == "" {
		topic = prefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &MQTT{
		cfg:     cfg,
		client:  client,
		topic:   strings.TrimSuffix(topic, "/"),
		timeout: cfg.Timeout,
		alive:   alive.NewAlive(),
	}
}

// SendAngles implements Sink
func (m *MQTT) SendAngles(roll, pitch, yaw float32) {
	if m.cfg.Mode == ModeEach {
		sendEach(m, roll, pitch, yaw)
		return
	}
	m.publish(m.subtopic("imu_all"), FormatTriple(roll, pitch, yaw))
}

// SendAngle implements Sink
func (m *MQTT) SendAngle(name string, value float32) {
	m.publish(m.subtopic("imu_"+name), FormatValue(value))
}

func (m *MQTT) subtopic(name string) string {
	if m.topic == "" {
		return name
	}
	return m.topic + "/" + name
}

func (m *MQTT) publish(topic, payload string) {
	if !m.alive.Add(1) {
		return
	}
	t := m.client.Publish(topic, mqttQoS, false, payload)
	go func() {
		defer m.alive.Done()
		if !t.WaitTimeout(m.timeout) {
			glog.Warningf("MQTT publish %s: timeout", topic)
			return
		}
		if err := t.Error(); err != nil {
			glog.Warningf("MQTT publish %s: %v", topic, err)
		}
	}()
}

// Close waits for pending publishes and disconnects
func (m *MQTT) Close() error {
	m.alive.Stop()
	m.alive.Wait()
	m.client.Disconnect(mqttDisconnectQuiet)
	return nil
}
