// Package monitor watches backend reachability and schedules drains. It
// never blocks application reads or writes; everything here happens on a
// background goroutine.
package monitor

import (
	"context"
	"time"

	"github.com/mlukins/cellar/internal/client/remote"
	"github.com/mlukins/cellar/internal/client/repositories/outbox"
	"github.com/mlukins/cellar/internal/client/repositories/photos"
	synceng "github.com/mlukins/cellar/internal/client/sync"
	"github.com/mlukins/cellar/internal/logging"
)

// Status is the externally signaled connectivity state. online/offline is
// the underlying two-state machine; syncing and synced are derived transient
// states used only for the UI indicator, never for control flow.
type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
)

const pingTimeout = 3 * time.Second

// Monitor probes reachability on an interval and triggers drains on the
// offline-to-online transition. The interval poll doubles as the safety net
// for missed transitions: pending work plus a reachable backend always
// triggers a drain, whether or not a transition was observed.
type Monitor struct {
	client remote.Client
	engine *synceng.Engine
	outbox outbox.Repository
	photos photos.Repository
	log    logging.Logger

	interval time.Duration
	notify   func(Status)

	online bool
}

func New(client remote.Client, engine *synceng.Engine, ob outbox.Repository,
	ph photos.Repository, interval time.Duration, notify func(Status),
	log logging.Logger) *Monitor {
	if notify == nil {
		notify = func(Status) {}
	}
	return &Monitor{
		client:   client,
		engine:   engine,
		outbox:   ob,
		photos:   ph,
		interval: interval,
		notify:   notify,
		log:      log.With("component", "monitor"),
	}
}

// Run blocks until ctx is canceled, probing reachability on every tick. The
// first probe happens immediately so a freshly started process drains
// without waiting a full interval.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)
	for {
		select {
		case <-ticker.C:
			m.check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := m.client.Ping(pingCtx)
	cancel()

	if err != nil {
		if m.online {
			m.online = false
			m.log.Info(ctx, "backend became unreachable")
			m.notify(StatusOffline)
		}
		return
	}

	becameReachable := !m.online
	if becameReachable {
		m.online = true
		m.log.Info(ctx, "backend became reachable")
		m.notify(StatusOnline)
	}

	pending := m.pendingTotal(ctx)
	if !becameReachable && pending == 0 {
		return
	}

	m.drain(ctx)
}

func (m *Monitor) pendingTotal(ctx context.Context) int {
	n, err := m.outbox.PendingCount(ctx)
	if err != nil {
		m.log.Error(ctx, "failed to count pending mutations", "error", err)
	}
	p, err := m.photos.PendingCount(ctx)
	if err != nil {
		m.log.Error(ctx, "failed to count pending photos", "error", err)
	}
	return n + p
}

// drain runs one mutation pass, one photo pass, and a refresh, signaling
// syncing/synced around it.
func (m *Monitor) drain(ctx context.Context) {
	m.notify(StatusSyncing)

	if err := m.engine.DrainMutations(ctx); err != nil {
		m.log.Error(ctx, "mutation drain failed", "error", err)
	}
	if err := m.engine.DrainPhotos(ctx); err != nil {
		m.log.Error(ctx, "photo drain failed", "error", err)
	}
	if err := m.engine.Refresh(ctx); err != nil {
		m.log.Error(ctx, "refresh failed", "error", err)
	}

	if m.pendingTotal(ctx) == 0 {
		m.notify(StatusSynced)
	} else {
		m.notify(StatusOnline)
	}
}
