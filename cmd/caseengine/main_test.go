package main

import (
	"context"
	"testing"
	"time"

	"github.com/gpnet/caseengine/internal/config"
	"github.com/gpnet/caseengine/internal/domain/allocation"
	"github.com/gpnet/caseengine/internal/domain/casefile"
	"github.com/gpnet/caseengine/internal/platform/auth"
)

func TestRootCommand_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := map[string][]string{
		"serve":   nil,
		"migrate": {"up", "status"},
		"sweep":   {"overdue", "rebalance", "reassess", "notification-retry"},
	}
	for name, subs := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered", name)
		}
		for _, sub := range subs {
			c, _, err := root.Find([]string{name, sub})
			if err != nil || c.Name() != sub {
				t.Errorf("command %q %q not registered", name, sub)
			}
		}
	}
}

func TestWeightsFrom_MatchesDefaults(t *testing.T) {
	cfg := config.Allocation{
		BaseScore:             50,
		PriorityUrgent:        20,
		PriorityHigh:          15,
		PriorityMedium:        10,
		PriorityLow:           5,
		SpecializationBonus:   25,
		CompanyBonus:          10,
		MaxCaseload:           20,
		BalanceWeight:         0.6,
		ResponseWeight:        0.4,
		ResponseCeilingDays:   30,
		AvailabilityThreshold: 0.5,
		RebalanceSpread:       5,
		RebalanceMaxMoves:     50,
	}
	got := weightsFrom(cfg)
	want := allocation.DefaultWeights()

	if got.BaseScore != want.BaseScore || got.MaxCaseload != want.MaxCaseload ||
		got.BalanceWeight != want.BalanceWeight || got.ResponseWeight != want.ResponseWeight ||
		got.RebalanceSpread != want.RebalanceSpread || got.RebalanceMaxMoves != want.RebalanceMaxMoves {
		t.Errorf("weightsFrom() = %+v, want %+v", got, want)
	}
	for _, p := range []casefile.Priority{casefile.PriorityUrgent, casefile.PriorityHigh, casefile.PriorityMedium, casefile.PriorityLow} {
		if got.Priority[p] != want.Priority[p] {
			t.Errorf("priority %s: got %v, want %v", p, got.Priority[p], want.Priority[p])
		}
	}
}

func TestJobs_IntervalsFromConfig(t *testing.T) {
	cfg := &config.Config{
		OverdueSweepInterval:  time.Hour,
		RebalanceInterval:     6 * time.Hour,
		ReassessSweepInterval: 0,
	}
	jobs := (&app{}).jobs(cfg)

	cases := map[string]time.Duration{
		"overdue":            time.Hour,
		"rebalance":          6 * time.Hour,
		"reassess":           0,
		"notification-retry": notificationRetryTick,
	}
	for name, interval := range cases {
		job, ok := findJob(jobs, name)
		if !ok {
			t.Fatalf("job %q missing", name)
		}
		if job.Interval != interval {
			t.Errorf("job %q interval = %v, want %v", name, job.Interval, interval)
		}
	}
	if _, ok := findJob(jobs, "unknown"); ok {
		t.Error("expected unknown job lookup to fail")
	}
}

func TestSweepContext_ActsAsAdmin(t *testing.T) {
	ctx := sweepContext(context.Background())
	if got := auth.UserIDFromContext(ctx); got != sweepActor {
		t.Errorf("actor = %q, want %q", got, sweepActor)
	}
	if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleCaseManager) {
		t.Error("expected sweep identity to satisfy case_manager routes")
	}
}
