package risk

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/organization"
	"github.com/gpnet/caseengine/internal/domain/rag"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func kg(v float64) *float64 { return &v }

func item(t *testing.T, caseID uuid.UUID, at time.Time, p evidence.Payload) evidence.Item {
	t.Helper()
	it, err := evidence.NewItem(caseID, "test", at, p)
	if err != nil {
		t.Fatalf("NewItem: %v", err)
	}
	it.ID = uuid.New()
	it.CreatedAt = at
	return it
}

func newTestEngine(policies *mockPolicies) *Engine {
	return NewEngine(evidence.NewClassifier(zerolog.Nop()), policies, zerolog.Nop())
}

func okPolicy(orgID uuid.UUID) *mockPolicies {
	return &mockPolicies{policies: map[uuid.UUID]organization.Policy{orgID: {OrganizationID: orgID}}}
}

func hasFold(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(strings.ToLower(s), strings.ToLower(sub)) {
			return true
		}
	}
	return false
}

func TestFuse_PreEmploymentLifting(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	out := newTestEngine(okPolicy(org)).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items:          []evidence.Item{item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormPreEmployment, LiftingKg: kg(10)})},
		Now:            t0,
	})
	v := out.Verdict
	if v.RAG != rag.Amber || v.Fitness != rag.FitWithRestrictions {
		t.Errorf("expected amber/fit_with_restrictions, got %s/%s", v.RAG, v.Fitness)
	}
	if !hasFold(v.Recommendations, "ergonomic assessment") {
		t.Errorf("expected ergonomic recommendation, got %v", v.Recommendations)
	}
	if out.Gated {
		t.Error("configured policy must not gate")
	}
}

func TestFuse_MajorInjury(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	v := newTestEngine(okPolicy(org)).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items:          []evidence.Item{item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormInjury, Severity: "major"})},
		Now:            t0,
	}).Verdict
	if v.RAG != rag.Red || v.Fitness != rag.NotFit || v.Confidence != 90 {
		t.Errorf("expected red/not_fit/90, got %s/%s/%d", v.RAG, v.Fitness, v.Confidence)
	}
	if !v.NextReviewDue.Equal(t0.AddDate(0, 0, 3)) {
		t.Errorf("expected review in 3 days, got %v", v.NextReviewDue)
	}
}

func TestFuse_ProbationGate(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	policies := &mockPolicies{policies: map[uuid.UUID]organization.Policy{
		org: {OrganizationID: org, ProbationRequired: true},
	}}
	out := newTestEngine(policies).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items:          []evidence.Item{item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormPreEmployment, LiftingKg: kg(30)})},
		Now:            t0,
	})
	v := out.Verdict
	if v.RAG != rag.Red || v.Fitness != rag.ProbationRequired {
		t.Errorf("expected red/probation_required, got %s/%s", v.RAG, v.Fitness)
	}
	if v.Confidence > 50 {
		t.Errorf("expected confidence capped at 50, got %d", v.Confidence)
	}
	if !out.Gated || out.Source != SourceComplianceGate {
		t.Errorf("expected gated outcome from compliance gate, got %+v", out)
	}
	if !hasFold(v.RiskFactors, "probation") || !hasFold(v.TriggerReasons, "probation") {
		t.Errorf("expected gap in factors and triggers, got %v / %v", v.RiskFactors, v.TriggerReasons)
	}
}

func TestFuse_ProbationGateFailsClosed(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	out := newTestEngine(&mockPolicies{err: errors.New("connection reset")}).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items:          []evidence.Item{item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormPreEmployment})},
		Now:            t0,
	})
	if !out.Gated || out.Verdict.Fitness != rag.ProbationRequired {
		t.Errorf("expected policy read failure to gate, got %+v", out.Verdict)
	}
}

func TestFuse_GateIgnoresOtherEvidence(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	policies := &mockPolicies{policies: map[uuid.UUID]organization.Policy{org: {ProbationRequired: true}}}
	out := newTestEngine(policies).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items:          []evidence.Item{item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormInjury, Severity: "minor"})},
		Now:            t0,
	})
	if out.Gated || out.Verdict.RAG != rag.Green {
		t.Errorf("injury evidence must not be gated, got %+v", out.Verdict)
	}
}

func TestFuse_GateOutranksOverride(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	policies := &mockPolicies{policies: map[uuid.UUID]organization.Policy{org: {ProbationRequired: true}}}
	out := newTestEngine(policies).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items: []evidence.Item{
			item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormPreEmployment}),
			item(t, caseID, t0.Add(time.Hour), evidence.ManualOverride{RAG: rag.Green, Reason: "Cleared by physician"}),
		},
		Now: t0,
	})
	if out.Verdict.RAG != rag.Red || out.Verdict.Fitness != rag.ProbationRequired {
		t.Errorf("expected gate to outrank override, got %s/%s", out.Verdict.RAG, out.Verdict.Fitness)
	}
}

func TestFuse_NeverDowngradesWithoutOverride(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	payloads := []evidence.Payload{
		evidence.Correspondence{Subject: "update", Body: "improving"},
		evidence.FormSubmission{FormType: evidence.FormInjury, Severity: "major"},
		evidence.DocumentSignal{Classification: "medical_certificate"},
		evidence.FormSubmission{FormType: evidence.FormInjury, Severity: "minor"},
	}
	perms := [][]int{{0, 1, 2, 3}, {3, 2, 1, 0}, {1, 0, 3, 2}, {2, 3, 0, 1}, {0, 2, 3, 1}}
	e := newTestEngine(okPolicy(org))

	for _, perm := range perms {
		var items []evidence.Item
		for i, idx := range perm {
			items = append(items, item(t, caseID, t0.Add(time.Duration(i)*time.Minute), payloads[idx]))
		}
		out := e.Fuse(context.Background(), Input{CaseID: caseID, OrganizationID: org, Items: items, Now: t0})
		if out.Verdict.RAG != rag.Red {
			t.Errorf("order %v: expected red, got %s", perm, out.Verdict.RAG)
		}
		for i := range items {
			prefix := e.Fuse(context.Background(), Input{CaseID: caseID, OrganizationID: org, Items: items[:i+1], Now: t0}).Verdict.RAG
			longer := e.Fuse(context.Background(), Input{CaseID: caseID, OrganizationID: org, Items: items, Now: t0}).Verdict.RAG
			if longer < prefix {
				t.Errorf("order %v: fused level dropped from %s to %s", perm, prefix, longer)
			}
		}
	}

	prior := &Verdict{CaseID: caseID, RAG: rag.Red, Fitness: rag.NotFit, Confidence: 90}
	out := e.Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items:          []evidence.Item{item(t, caseID, t0, evidence.Correspondence{Body: "thank you"})},
		Prior:          prior,
		Now:            t0,
	})
	if out.Verdict.RAG != rag.Red {
		t.Errorf("green evidence must not downgrade a red prior, got %s", out.Verdict.RAG)
	}
}

func TestFuse_ManualOverride(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	e := newTestEngine(okPolicy(org))
	prior := &Verdict{CaseID: caseID, RAG: rag.Red, Fitness: rag.NotFit, Confidence: 90, RiskFactors: []string{"Injury severity major"}}

	out := e.Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items: []evidence.Item{
			item(t, caseID, t0, evidence.DocumentSignal{Classification: "specialist_report"}),
			item(t, caseID, t0.Add(time.Hour), evidence.ManualOverride{RAG: rag.Green, Reason: "Cleared after review"}),
		},
		Prior: prior,
		Now:   t0,
	})
	v := out.Verdict
	if v.RAG != rag.Green || v.Confidence != 100 {
		t.Errorf("expected override to green at 100, got %s/%d", v.RAG, v.Confidence)
	}
	if out.Source != SourceManualOverride || out.Reason != "Cleared after review" {
		t.Errorf("unexpected source %q reason %q", out.Source, out.Reason)
	}
	if len(v.RiskFactors) != 0 {
		t.Errorf("override must replace prior factors, got %v", v.RiskFactors)
	}

	escalated := e.Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items: []evidence.Item{
			item(t, caseID, t0, evidence.ManualOverride{RAG: rag.Green, Reason: "Cleared"}),
			item(t, caseID, t0.Add(time.Hour), evidence.Correspondence{Body: "He was hospitalised overnight"}),
		},
		Now: t0,
	}).Verdict
	if escalated.RAG != rag.Red || escalated.Confidence != 70 {
		t.Errorf("later evidence must escalate past an override, got %s/%d", escalated.RAG, escalated.Confidence)
	}
}

func TestFuse_DedupeAndConfidence(t *testing.T) {
	org, caseID := uuid.New(), uuid.New()
	v := newTestEngine(okPolicy(org)).Fuse(context.Background(), Input{
		CaseID:         caseID,
		OrganizationID: org,
		Items: []evidence.Item{
			item(t, caseID, t0, evidence.DocumentSignal{Classification: "Medical Certificate"}),
			item(t, caseID, t0.Add(time.Minute), evidence.DocumentSignal{Classification: "medical certificate"}),
			item(t, caseID, t0.Add(2*time.Minute), evidence.FormSubmission{FormType: evidence.FormInjury, Severity: "minor"}),
		},
		Now: t0,
	}).Verdict
	if len(v.RiskFactors) != 1 {
		t.Errorf("expected case-insensitive dedupe of factors, got %v", v.RiskFactors)
	}
	if len(v.Recommendations) != 1 {
		t.Errorf("expected deduplicated recommendations, got %v", v.Recommendations)
	}
	if v.Confidence != evidence.ConfidenceDocument {
		t.Errorf("expected minimum confidence %d, got %d", evidence.ConfidenceDocument, v.Confidence)
	}
	if len(v.TriggerReasons) != 1 {
		t.Errorf("expected one escalation trigger, got %v", v.TriggerReasons)
	}
}

func TestFuse_NoEvidence(t *testing.T) {
	org := uuid.New()
	v := newTestEngine(okPolicy(org)).Fuse(context.Background(), Input{CaseID: uuid.New(), OrganizationID: org, Now: t0}).Verdict
	if v.RAG != rag.Green || v.Fitness != rag.Fit || v.Confidence != 50 {
		t.Errorf("expected green/fit/50, got %s/%s/%d", v.RAG, v.Fitness, v.Confidence)
	}
	if !v.NextReviewDue.Equal(t0.AddDate(0, 0, 30)) {
		t.Errorf("expected 30-day review, got %v", v.NextReviewDue)
	}
	if v.RiskFactors == nil || v.Recommendations == nil || v.TriggerReasons == nil {
		t.Error("expected empty, non-nil slices")
	}
}

func TestShouldReassess(t *testing.T) {
	caseID := uuid.New()
	last := t0
	tests := []struct {
		name    string
		items   []evidence.Item
		current rag.Level
		now     time.Time
		want    bool
	}{
		{"fresh, nothing new", nil, rag.Green, t0.Add(24 * time.Hour), false},
		{"red window elapsed", nil, rag.Red, t0.Add(4 * 24 * time.Hour), true},
		{"amber within window", nil, rag.Amber, t0.Add(6 * 24 * time.Hour), false},
		{"green window elapsed", nil, rag.Green, t0.Add(31 * 24 * time.Hour), true},
		{"document signal", []evidence.Item{item(t, caseID, t0, evidence.DocumentSignal{Classification: "x"})}, rag.Green, t0, true},
		{"medium correspondence", []evidence.Item{item(t, caseID, t0, evidence.Correspondence{Body: "pain is worsening"})}, rag.Green, t0, true},
		{"low correspondence", []evidence.Item{item(t, caseID, t0, evidence.Correspondence{Body: "thank you for the update"})}, rag.Green, t0, false},
		{"form submission alone", []evidence.Item{item(t, caseID, t0, evidence.FormSubmission{FormType: evidence.FormInjury})}, rag.Green, t0, false},
	}
	for _, tt := range tests {
		if got := ShouldReassess(last, tt.items, tt.current, tt.now); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
