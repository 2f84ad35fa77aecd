package orch

import (
	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/observability"
)

// Orchestrator wires the realtime core together. Adapters call into it once
// per transport event; it never returns errors across a connection boundary
// other than to the connection that caused them.
type Orchestrator struct {
	Registry *app.Registry
	Notify   *app.Notifier
	Presence *app.Presence
	Status   *app.StatusMachine
	Relay    *app.Relay
	Calls    *app.CallTracker
	Limiter  *app.CallRateLimiter
}

type Deps struct {
	Store    core.MessageStore
	Graph    core.SocialGraph
	LastSeen core.LastSeenStore
	Policy   app.Policy
	Metrics  *observability.Metrics
	Status   app.StatusConfig
	Calls    *app.CallTracker
	Limiter  *app.CallRateLimiter
}

func New(d Deps) *Orchestrator {
	reg := app.NewRegistry()
	reg.Metrics = d.Metrics
	notify := &app.Notifier{Registry: reg, Policy: d.Policy}

	status := app.NewStatusMachine(d.Status)
	status.Store = d.Store
	status.Graph = d.Graph
	status.Registry = reg
	status.Notify = notify
	status.Metrics = d.Metrics

	calls := d.Calls
	if calls == nil {
		calls = app.NewCallTracker(0)
	}
	calls.Metrics = d.Metrics

	o := &Orchestrator{
		Registry: reg,
		Notify:   notify,
		Presence: &app.Presence{
			Registry: reg,
			Notify:   notify,
			Graph:    d.Graph,
			LastSeen: d.LastSeen,
			Metrics:  d.Metrics,
			Timeout:  d.Status.Timeout,
		},
		Status:  status,
		Relay:   &app.Relay{Registry: reg, Notify: notify, Metrics: d.Metrics},
		Calls:   calls,
		Limiter: d.Limiter,
	}
	calls.OnTimeout = o.onCallTimeout
	return o
}
