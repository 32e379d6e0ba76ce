// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package liveness decides from heartbeat arrivals and timeouts whether the
// vehicle link is alive. The Monitor only counts; the caller owns the timer
// and performs the returned actions.
package liveness

import (
	"fmt"
	"time"
)

// Defaults
const (
	DefaultHeartbeatBudget  = 10
	DefaultMaxLost          = 5
	DefaultHeartbeatTimeout = 3000 * time.Millisecond
	DefaultGracePeriod      = 6000 * time.Millisecond
)

// State of the link
type State int

const (
	StateAwaitingFirstContact State = iota
	StateLive
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateAwaitingFirstContact:
		return "AWAITING_FIRST_CONTACT"
	case StateLive:
		return "LIVE"
	case StateDegraded:
		return "DEGRADED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Action tells the caller what to do after an event
type Action int

const (
	// ActionNone requires nothing beyond restarting the timer
	ActionNone Action = iota
	// ActionInitialize runs the one-time post-connect setup
	ActionInitialize
	// ActionWarn reports a missed heartbeat
	ActionWarn
	// ActionFailover asks the transport to switch channels
	ActionFailover
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInitialize:
		return "initialize"
	case ActionWarn:
		return "warn"
	case ActionFailover:
		return "failover"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// Config holds the monitor's limits
type Config struct {
	HeartbeatBudget  int
	MaxLost          int
	HeartbeatTimeout time.Duration
	GracePeriod      time.Duration
}

// DefaultConfig returns the stock limits
func DefaultConfig() Config {
	return Config{
		HeartbeatBudget:  DefaultHeartbeatBudget,
		MaxLost:          DefaultMaxLost,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		GracePeriod:      DefaultGracePeriod,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatBudget <= 0 {
		c.HeartbeatBudget = d.HeartbeatBudget
	}
	if c.MaxLost <= 0 {
		c.MaxLost = d.MaxLost
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	return c
}

// Monitor tracks heartbeats. Not safe for concurrent use.
type Monitor struct {
	cfg Config

	state     State
	budget    int
	lost      int
	connected bool

	heartbeats    uint64
	failovers     uint64
	lastHeartbeat time.Time
}

// NewMonitor creates a monitor awaiting first contact
func NewMonitor(cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		cfg:    cfg,
		state:  StateAwaitingFirstContact,
		budget: cfg.HeartbeatBudget,
	}
}

// Heartbeat records a heartbeat. The caller restarts the timer with Interval.
// Returns ActionInitialize exactly once per contact, when the budget of
// heartbeats is used up.
func (m *Monitor) Heartbeat() Action {
	m.heartbeats++
	m.lastHeartbeat = time.Now()
	m.lost = 0

	switch m.state {
	case StateLive:
		return ActionNone
	case StateDegraded:
		m.state = StateAwaitingFirstContact
	}

	m.budget--
	if m.budget > 0 {
		return ActionNone
	}
	m.budget = 0
	m.state = StateLive
	m.connected = true
	return ActionInitialize
}

// Expire records a timer expiry without a heartbeat in between. Once the
// limit is reached every further silent expiry requests another failover;
// only a heartbeat clears the count.
func (m *Monitor) Expire() Action {
	m.lost++
	if m.lost < m.cfg.MaxLost {
		return ActionWarn
	}

	m.state = StateDegraded
	m.budget = m.cfg.HeartbeatBudget
	m.connected = false
	m.failovers++
	return ActionFailover
}

// Interval is the timer period to use: the grace period until the first
// heartbeat, then the heartbeat timeout.
func (m *Monitor) Interval() time.Duration {
	if m.heartbeats == 0 {
		return m.cfg.GracePeriod
	}
	return m.cfg.HeartbeatTimeout
}

// State returns the link state
func (m *Monitor) State() State { return m.state }

// Connected reports whether initialization has run for the current contact
func (m *Monitor) Connected() bool { return m.connected }

// Lost returns the number of consecutive expiries
func (m *Monitor) Lost() int { return m.lost }

// Budget returns the heartbeats still needed before the link counts as live
func (m *Monitor) Budget() int { return m.budget }

// Heartbeats returns the total number of heartbeats seen
func (m *Monitor) Heartbeats() uint64 { return m.heartbeats }

// Failovers returns how many failovers were requested
func (m *Monitor) Failovers() uint64 { return m.failovers }

// LastHeartbeat returns when the last heartbeat arrived (zero if never)
func (m *Monitor) LastHeartbeat() time.Time { return m.lastHeartbeat }

// Config returns the effective limits
func (m *Monitor) Config() Config { return m.cfg }
