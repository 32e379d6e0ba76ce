// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package sink

import (
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"
	"github.com/temoto/alive/v2"
)

// HTTP posts angles as path segments with an empty body:
// {host}{path}/imu_all/{roll}:{pitch}:{yaw} or {host}{path}/imu_{name}/{value}.
type HTTP struct {
	cfg    Config
	base   string
	client *http.Client
	alive  *alive.Alive
}

// NewHTTP creates an HTTP sink. Requests never go through a proxy.
func NewHTTP(cfg Config) *HTTP {
	d := DefaultConfig()
	if cfg.APIHost == "" {
		cfg.APIHost = d.APIHost
	}
	if cfg.APIPath == "" {
		cfg.APIPath = d.APIPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return &HTTP{
		cfg:  cfg,
		base: strings.TrimSuffix(cfg.APIHost, "/") + cfg.APIPath,
		client: &http.Client{
			Transport: &http.Transport{Proxy: nil},
			Timeout:   cfg.Timeout,
		},
		alive: alive.NewAlive(),
	}
}

// SendAngles implements Sink
func (h *HTTP) SendAngles(roll, pitch, yaw float32) {
	if h.cfg.Mode == ModeEach {
		sendEach(h, roll, pitch, yaw)
		return
	}
	h.post(h.base + "/imu_all/" + FormatTriple(roll, pitch, yaw))
}

// SendAngle implements Sink
func (h *HTTP) SendAngle(name string, value float32) {
	h.post(h.base + "/imu_" + name + "/" + FormatValue(value))
}

func (h *HTTP) post(url string) {
	if !h.alive.Add(1) {
		return
	}
	go func() {
		defer h.alive.Done()

		req, err := http.NewRequest(http.MethodPost, url, nil)
		if err != nil {
			glog.Warningf("HTTP request failed (%s): %v", url, err)
			return
		}
		resp, err := h.client.Do(req)
		if err != nil {
			glog.Warningf("HTTP request failed (%s): %v", url, err)
			return
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode >= 400 {
			glog.Warningf("HTTP request failed (%s): %s", url, resp.Status)
			return
		}
		glog.V(2).Infof("POST %s: %s", url, resp.Status)
	}()
}

// Close waits for in-flight requests. Later sends are dropped.
func (h *HTTP) Close() error {
	h.alive.Stop()
	h.alive.Wait()
	h.client.CloseIdleConnections()
	return nil
}
