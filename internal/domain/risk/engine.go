package risk

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/organization"
	"github.com/gpnet/caseengine/internal/domain/rag"
)

const (
	defaultConfidence = evidence.ConfidenceNeutral
	gateConfidenceCap = 50

	reasonProbationGap    = "Organization requires a probation period but none is configured"
	reasonPolicyReadError = "Organization probation policy could not be read"
)

// PolicyReader returns an organization's probation configuration.
type PolicyReader interface {
	Policy(ctx context.Context, orgID uuid.UUID) (organization.Policy, error)
}

// Input is one fusion request. Items need not be sorted.
type Input struct {
	CaseID         uuid.UUID
	OrganizationID uuid.UUID
	Items          []evidence.Item
	Prior          *Verdict
	Now            time.Time
}

// Outcome is the fused verdict plus what produced it.
type Outcome struct {
	Verdict   Verdict
	Judgments []evidence.Judgment
	// Source and Reason describe the input that set the final level.
	Source string
	Reason string
	Gated  bool
}

// Engine fuses classified evidence into a single verdict.
type Engine struct {
	classifier *evidence.Classifier
	policies   PolicyReader
	logger     zerolog.Logger
}

func NewEngine(classifier *evidence.Classifier, policies PolicyReader, logger zerolog.Logger) *Engine {
	return &Engine{classifier: classifier, policies: policies, logger: logger}
}

// fold accumulates judgments under max-severity semantics. The level only
// ever moves up once folding starts.
type fold struct {
	level      rag.Level
	confidence int
	weighed    bool
	factors    []string
	recs       []string
	triggers   []string
	source     string
	reason     string
}

func (f *fold) weigh(conf int) {
	if !f.weighed || conf < f.confidence {
		f.confidence = conf
	}
	f.weighed = true
}

func (f *fold) apply(j evidence.Judgment) {
	f.weigh(j.Confidence)
	f.factors = appendUnique(f.factors, j.RiskFactors...)
	f.recs = appendUnique(f.recs, j.Recommendations...)
	if next := rag.MaxSeverity(f.level, j.RAG); next != f.level {
		f.level = next
		f.source = string(j.Kind)
		f.reason = j.TriggerReason
		f.triggers = appendUnique(f.triggers, j.TriggerReason)
	}
}

// Fuse classifies every item and folds the judgments onto the prior verdict.
//
// The most recent manual override replaces the baseline; items received
// before it are superseded and do not contribute. Everything after the
// baseline only escalates. The probation gate runs last and outranks an
// override whenever the batch holds a pre-employment form.
func (e *Engine) Fuse(ctx context.Context, in Input) Outcome {
	items := make([]evidence.Item, len(in.Items))
	copy(items, in.Items)
	sort.SliceStable(items, func(i, j int) bool { return items[i].ReceivedAt.Before(items[j].ReceivedAt) })

	judgments := make([]evidence.Judgment, len(items))
	lastOverride := -1
	for i, it := range items {
		judgments[i] = e.classifier.Classify(it)
		if it.Kind == evidence.KindManualOverride && judgments[i].Confidence == evidence.ConfidenceOverride {
			lastOverride = i
		}
	}

	f := fold{level: rag.Green, source: SourceInitial}
	if p := in.Prior; p != nil {
		f.level = p.RAG
		f.confidence = p.Confidence
		f.factors = appendUnique(nil, p.RiskFactors...)
		f.recs = appendUnique(nil, p.Recommendations...)
		f.triggers = appendUnique(nil, p.TriggerReasons...)
		f.source = ""
	}

	start := 0
	overridden := lastOverride >= 0
	if overridden {
		o := judgments[lastOverride]
		f = fold{level: o.RAG, source: SourceManualOverride, reason: o.TriggerReason}
		f.weigh(o.Confidence)
		f.triggers = []string{o.TriggerReason}
		start = lastOverride + 1
	}
	for _, j := range judgments[start:] {
		f.apply(j)
	}

	v := Verdict{
		CaseID:          in.CaseID,
		RAG:             f.level,
		Fitness:         rag.FitnessFor(f.level),
		Confidence:      f.confidence,
		Recommendations: f.recs,
		RiskFactors:     f.factors,
		TriggerReasons:  f.triggers,
		LastAssessedAt:  in.Now,
	}
	if !f.weighed && in.Prior == nil {
		v.Confidence = defaultConfidence
	}
	out := Outcome{Judgments: judgments, Source: f.source, Reason: f.reason}

	if v.RAG != rag.Red && preEmployment(items) {
		if reason, gated := e.gate(ctx, in.OrganizationID); gated {
			v.RAG = rag.Red
			v.Fitness = rag.ProbationRequired
			v.RiskFactors = appendUnique(v.RiskFactors, reason)
			v.TriggerReasons = appendUnique(v.TriggerReasons, reason)
			if v.Confidence > gateConfidenceCap {
				v.Confidence = gateConfidenceCap
			}
			out.Source = SourceComplianceGate
			out.Reason = reason
			out.Gated = true
		}
	}

	// A gated verdict keeps its probation label until a human overrides it.
	if !out.Gated && !overridden && in.Prior != nil && in.Prior.Fitness == rag.ProbationRequired && v.RAG == rag.Red {
		v.Fitness = rag.ProbationRequired
	}

	if v.Recommendations == nil {
		v.Recommendations = []string{}
	}
	if v.RiskFactors == nil {
		v.RiskFactors = []string{}
	}
	if v.TriggerReasons == nil {
		v.TriggerReasons = []string{}
	}
	v.NextReviewDue = in.Now.AddDate(0, 0, rag.ReviewDays(v.RAG))
	out.Verdict = v
	return out
}

// gate checks the organization's probation policy. A policy that cannot be
// read blocks the fit outcome.
func (e *Engine) gate(ctx context.Context, orgID uuid.UUID) (string, bool) {
	p, err := e.policies.Policy(ctx, orgID)
	if err != nil {
		e.logger.Error().Err(err).Str("organization_id", orgID.String()).Msg("probation policy unavailable, gating verdict")
		return reasonPolicyReadError, true
	}
	if p.Gap() {
		return reasonProbationGap, true
	}
	return "", false
}

func preEmployment(items []evidence.Item) bool {
	for _, it := range items {
		if it.IsPreEmploymentForm() {
			return true
		}
	}
	return false
}

// appendUnique appends values not already present, comparing case-insensitively.
func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" {
			continue
		}
		dup := false
		for _, d := range dst {
			if strings.EqualFold(d, v) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}
