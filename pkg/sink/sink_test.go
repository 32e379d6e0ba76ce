// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Test Helpers
// ============================================================

type recorder struct {
	mu      sync.Mutex
	paths   []string
	methods []string
	bodies  []int64
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	r.paths = append(r.paths, req.URL.Path)
	r.methods = append(r.methods, req.Method)
	r.bodies = append(r.bodies, req.ContentLength)
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (r *recorder) sortedPaths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]string(nil), r.paths...)
	sort.Strings(out)
	return out
}

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	payload string
}

type fakePublisher struct {
	mu           sync.Mutex
	msgs         []published
	err          error
	disconnected bool
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, payload: payload.(string)})
	return &fakeToken{err: p.err}
}

func (p *fakePublisher) Disconnect(uint) {
	p.mu.Lock()
	p.disconnected = true
	p.mu.Unlock()
}

// ============================================================
// Formatting Tests
// ============================================================

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float32
		want string
	}{
		{0, "0"},
		{0.1, "0.1"},
		{-0.5, "-0.5"},
		{1.5707964, "1.5708"},
		{3.1415927, "3.14159"},
		{123456.7, "123457"},
		{1e-7, "1e-07"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
	assert.Equal(t, "0.1:-0.2:3", FormatTriple(0.1, -0.2, 3))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("each")
	require.NoError(t, err)
	assert.Equal(t, ModeEach, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)
	assert.Equal(t, "all", m.String())

	_, err = ParseMode("some")
	assert.True(t, errors.IsNotValid(err))
}

// ============================================================
// HTTP Sink Tests
// ============================================================

func TestHTTP_SendAngles(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewHTTP(Config{APIHost: srv.URL, APIPath: "/api/v1"})
	s.SendAngles(0.1, -0.25, 1.5)
	require.NoError(t, s.Close())

	assert.Equal(t, []string{"/api/v1/imu_all/0.1:-0.25:1.5"}, rec.sortedPaths())
	assert.Equal(t, []string{http.MethodPost}, rec.methods)
	assert.Equal(t, []int64{0}, rec.bodies)
}

func TestHTTP_ModeEach(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewHTTP(Config{APIHost: srv.URL + "/", APIPath: "/api/v1", Mode: ModeEach})
	s.SendAngles(1, 2, 3)
	require.NoError(t, s.Close())

	assert.Equal(t, []string{
		"/api/v1/imu_pitch/2",
		"/api/v1/imu_roll/1",
		"/api/v1/imu_yaw/3",
	}, rec.sortedPaths())
}

func TestHTTP_FailuresAreDropped(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	s := NewHTTP(Config{APIHost: "http://" + addr, Timeout: time.Second})
	s.SendAngles(1, 2, 3)
	s.SendAngle(AngleYaw, 3)
	assert.NoError(t, s.Close())
}

func TestHTTP_DefaultAPIPath(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewHTTP(Config{APIHost: srv.URL})
	s.SendAngles(0.5, -1, 2)
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"/api/v1/imu_all/0.5:-1:2"}, rec.sortedPaths())
}

func TestHTTP_ServerErrorIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTP(Config{APIHost: srv.URL})
	s.SendAngles(1, 2, 3)
	assert.NoError(t, s.Close())
}

func TestHTTP_SendAfterCloseIsIgnored(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewHTTP(Config{APIHost: srv.URL})
	require.NoError(t, s.Close())
	s.SendAngles(1, 2, 3)
	assert.Empty(t, rec.sortedPaths())
}

func TestHTTP_IgnoresProxyEnvironment(t *testing.T) {
	t.Setenv("HTTP_PROXY", "http://127.0.0.1:1")
	t.Setenv("http_proxy", "http://127.0.0.1:1")

	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()

	s := NewHTTP(Config{APIHost: srv.URL})
	s.SendAngle(AngleRoll, 0.5)
	require.NoError(t, s.Close())
	assert.Equal(t, []string{"/api/v1/imu_roll/0.5"}, rec.sortedPaths())
}

// ============================================================
// MQTT Sink Tests
// ============================================================

func TestMQTT_Publish(t *testing.T) {
	pub := &fakePublisher{}
	s := newMQTT(Config{}, pub, "vehicle/imu/")

	s.SendAngles(0.1, 0.2, 0.3)
	s.SendAngle(AngleYaw, 1)
	require.NoError(t, s.Close())

	assert.Equal(t, []published{
		{topic: "vehicle/imu/imu_all", payload: "0.1:0.2:0.3"},
		{topic: "vehicle/imu/imu_yaw", payload: "1"},
	}, pub.msgs)
	assert.True(t, pub.disconnected)
}

func TestMQTT_TopicOverrideAndEach(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker gone")}
	s := newMQTT(Config{Topic: "drone", Mode: ModeEach}, pub, "ignored")

	s.SendAngles(1, 2, 3)
	require.NoError(t, s.Close())

	require.Len(t, pub.msgs, 3)
	assert.Equal(t, "drone/imu_roll", pub.msgs[0].topic)
	assert.Equal(t, "drone/imu_pitch", pub.msgs[1].topic)
	assert.Equal(t, "drone/imu_yaw", pub.msgs[2].topic)
}

func TestMQTT_EmptyTopic(t *testing.T) {
	pub := &fakePublisher{}
	s := newMQTT(Config{}, pub, "")
	s.SendAngles(1, 2, 3)
	require.NoError(t, s.Close())
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "imu_all", pub.msgs[0].topic)
}

func TestClientOptionsFromURL(t *testing.T) {
	opts, prefix, err := ClientOptionsFromURL("mqtt://user:pw@broker:1883/vehicle/imu?client-id=gyro")
	require.NoError(t, err)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://broker:1883", opts.Servers[0].String())
	assert.Equal(t, "user", opts.Username)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, "gyro", opts.ClientID)
	assert.Equal(t, "vehicle/imu", prefix)

	opts, _, err = ClientOptionsFromURL("ssl://broker:8883")
	require.NoError(t, err)
	assert.Equal(t, "ssl://broker:8883", opts.Servers[0].String())

	_, _, err = ClientOptionsFromURL("broker")
	assert.True(t, errors.IsNotValid(err))
}

// ============================================================
// Factory Tests
// ============================================================

func TestNew(t *testing.T) {
	s, err := New(Config{Kind: KindDiscard})
	require.NoError(t, err)
	assert.Equal(t, Discard{}, s)
	s.SendAngles(1, 2, 3)
	assert.NoError(t, s.Close())

	s, err = New(DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &HTTP{}, s)
	assert.NoError(t, s.Close())

	_, err = New(Config{Kind: "carrier-pigeon"})
	assert.True(t, errors.IsNotValid(err))

	_, err = New(Config{Kind: KindMQTT, BrokerURL: "::bad"})
	assert.Error(t, err)
}
