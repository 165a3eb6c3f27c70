package mcp

import (
	"context"

	"github.com/robfig/cron/v3"
)

// RefreshAll re-fetches tools/resources/prompts for every connected server,
// satisfying spec §4.6's "MCP tools discovered on iteration 0; lazily
// refreshed" with a concrete mechanism beyond iteration-0-only discovery.
func (m *Manager) RefreshAll(ctx context.Context) error {
	for id, client := range m.Clients() {
		if err := client.RefreshCapabilities(ctx); err != nil {
			m.logger.Warn("refresh capabilities failed", "server", id, "error", err)
		}
	}
	return nil
}

// Scheduler runs Manager.RefreshAll on a cron expression, so capability
// lists pick up server-side additions (new tools, resources, prompts)
// without waiting on the next cold connect.
type Scheduler struct {
	cron *cron.Cron
	mgr  *Manager
}

// NewScheduler constructs a Scheduler bound to mgr. expr is a standard
// five-field cron expression (e.g. "*/5 * * * *" for every five minutes).
func NewScheduler(mgr *Manager, expr string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, mgr: mgr}
	_, err := c.AddFunc(expr, func() {
		ctx := context.Background()
		if err := mgr.RefreshAll(ctx); err != nil {
			mgr.logger.Warn("scheduled MCP refresh failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running the schedule in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the schedule, waiting for any in-flight refresh to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
