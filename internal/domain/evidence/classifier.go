package evidence

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/gpnet/caseengine/internal/domain/rag"
)

// Fixed confidence per evidence class. Free text is a weaker signal than a
// structured form.
const (
	ConfidencePreEmployment  = 95
	ConfidenceInjury         = 90
	ConfidenceCorrespondence = 70
	ConfidenceDocument       = 60
	ConfidenceOverride       = 100
	ConfidenceNeutral        = 50
)

const (
	RecErgonomic        = "Ergonomic assessment recommended before commencing manual handling duties"
	RecDelayedRecovery  = "Expedite imaging/specialist referral; review treatment plan"
	RecLegalThreat      = "Legal threat detected - requires immediate manual review"
	recFunctionalCheck  = "Functional capacity evaluation required before placement"
	recMSKReview        = "Review role demands against musculoskeletal history"
	recPsychosocial     = "Offer EAP referral and discuss supportive strategies with the worker"
	recMedicalClearance = "Medical clearance required before any return to duties"
	recModifiedDuties   = "Consider modified duties pending medical review"
	recDocumentReview   = "Review processed medical document for work restrictions"
)

var correspondenceActions = map[Urgency]string{
	UrgencyHigh:   "Contact worker today and escalate to case manager",
	UrgencyMedium: "Follow up with worker within 48 hours",
	UrgencyLow:    "Acknowledge and continue routine monitoring",
}

var (
	highUrgencyTerms = []string{
		"emergency", "hospitalised", "hospitalized", "suicidal", "self harm",
		"severe pain", "unable to work", "surgery", "collapsed", "urgent",
	}
	mediumUrgencyTerms = []string{
		"pain", "worsening", "not coping", "stress", "stressed", "anxious", "anxiety",
		"restrictions", "specialist", "delay", "missed appointment", "complaint",
	}
	lowUrgencyTerms = []string{
		"update", "progress", "improving", "appointment", "question", "thank you",
	}
	medicalTerms = []string{
		"physiotherapy", "physio", "mri", "x ray", "xray", "ct scan", "ultrasound",
		"fracture", "strain", "sprain", "inflammation", "diagnosis", "medication",
		"gp", "certificate", "orthopaedic", "psychologist", "psychiatrist",
	}
	legalThreatTerms = []string{
		"lawyer", "attorney", "legal action", "solicitor", "defamation",
		"privacy complaint", "discrimination", "ombudsman", "tribunal", "sue", "lawsuit",
	}
)

// Recovery benchmarks in weeks by injury type. Recovery is treated as
// delayed once expected weeks exceed delayFactor times the benchmark.
var recoveryBenchmarkWeeks = map[string]float64{
	"back":          8,
	"shoulder":      10,
	"knee":          12,
	"psychological": 16,
}

const (
	defaultBenchmarkWeeks = 10
	delayFactor           = 1.3
)

var injurySeverity = map[string]rag.Level{
	"minor":    rag.Green,
	"moderate": rag.Amber,
	"major":    rag.Red,
	"severe":   rag.Red,
}

// Classifier turns a single evidence item into a partial judgment. It never
// fails: anything it cannot interpret becomes the neutral judgment.
type Classifier struct {
	logger zerolog.Logger
}

func NewClassifier(logger zerolog.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify dispatches on the item's kind.
func (c *Classifier) Classify(it Item) Judgment {
	p, err := it.Decode()
	if err != nil {
		c.logger.Warn().Err(err).Str("item_id", it.ID.String()).Str("kind", string(it.Kind)).Msg("unclassifiable evidence, using neutral judgment")
		return neutral(it)
	}

	var j Judgment
	switch v := p.(type) {
	case FormSubmission:
		switch v.FormType {
		case FormPreEmployment:
			j = classifyPreEmployment(v)
		case FormInjury:
			j = classifyInjury(v)
		default:
			c.logger.Warn().Str("item_id", it.ID.String()).Str("form_type", v.FormType).Msg("unknown form type, using neutral judgment")
			return neutral(it)
		}
	case Correspondence:
		j = classifyCorrespondence(v)
	case DocumentSignal:
		j = classifyDocument(v)
	case ManualOverride:
		if !v.RAG.Valid() {
			return neutral(it)
		}
		j = Judgment{RAG: v.RAG, Confidence: ConfidenceOverride, TriggerReason: v.Reason}
	}
	j.ItemID = it.ID
	j.Kind = it.Kind
	return j
}

func neutral(it Item) Judgment {
	return Judgment{ItemID: it.ID, Kind: it.Kind, RAG: rag.Green, Confidence: ConfidenceNeutral}
}

// judgmentBuilder accumulates factors under max-severity semantics.
type judgmentBuilder struct {
	level   rag.Level
	factors []string
	recs    []string
}

func (b *judgmentBuilder) add(l rag.Level, factor string, recs ...string) {
	b.level = rag.MaxSeverity(b.level, l)
	if factor != "" {
		b.factors = append(b.factors, factor)
	}
	b.recs = append(b.recs, recs...)
}

func classifyPreEmployment(f FormSubmission) Judgment {
	var b judgmentBuilder

	if f.LiftingKg != nil {
		switch kg := *f.LiftingKg; {
		case kg < 5:
			b.add(rag.Red, fmt.Sprintf("Lifting capacity %.0f kg below 5 kg minimum", kg), recFunctionalCheck)
		case kg < 15:
			b.add(rag.Amber, fmt.Sprintf("Lifting capacity %.0f kg below 15 kg", kg), RecErgonomic)
		}
	}

	var current, past []string
	for _, flag := range f.Musculoskeletal {
		switch flag.Status {
		case MSKCurrent:
			current = append(current, flag.Area)
		case MSKPast:
			past = append(past, flag.Area)
		}
	}
	switch {
	case len(current) >= 2:
		b.add(rag.Red, "Multiple current musculoskeletal issues: "+strings.Join(current, ", "), recFunctionalCheck)
	case len(current) == 1:
		b.add(rag.Amber, "Current musculoskeletal issue: "+current[0], recMSKReview)
	case len(past) >= 2:
		b.add(rag.Amber, "Recurrent musculoskeletal history: "+strings.Join(past, ", "), recMSKReview)
	}

	var elevated []string
	for area, rating := range f.PsychosocialRatings {
		if rating >= 4 {
			elevated = append(elevated, area)
		}
	}
	sort.Strings(elevated)
	switch {
	case len(elevated) >= 2:
		b.add(rag.Red, "Elevated psychosocial ratings: "+strings.Join(elevated, ", "), recPsychosocial)
	case len(elevated) == 1:
		b.add(rag.Amber, "Elevated psychosocial rating: "+elevated[0], recPsychosocial)
	}

	return Judgment{
		RAG:             b.level,
		RiskFactors:     b.factors,
		Recommendations: b.recs,
		Confidence:      ConfidencePreEmployment,
		TriggerReason:   "pre-employment assessment scored " + b.level.String(),
		MentalHealth:    f.MentalHealthCheck,
	}
}

func classifyInjury(f FormSubmission) Judgment {
	var b judgmentBuilder

	severity := strings.ToLower(strings.TrimSpace(f.Severity))
	if severity != "" {
		level, ok := injurySeverity[severity]
		switch {
		case !ok:
			b.add(rag.Amber, "Unrecognised injury severity: "+f.Severity, recModifiedDuties)
		case level == rag.Red:
			b.add(level, "Injury severity "+severity, recMedicalClearance)
		case level == rag.Amber:
			b.add(level, "Injury severity "+severity, recModifiedDuties)
		}
	}

	if f.ExpectedRecoveryWks != nil {
		benchmark := BenchmarkWeeks(f.InjuryType)
		if *f.ExpectedRecoveryWks > benchmark*delayFactor {
			b.add(rag.Amber,
				fmt.Sprintf("Delayed recovery: %.0f weeks expected against %.0f-week benchmark", *f.ExpectedRecoveryWks, benchmark),
				RecDelayedRecovery)
		}
	}

	return Judgment{
		RAG:             b.level,
		RiskFactors:     b.factors,
		Recommendations: b.recs,
		Confidence:      ConfidenceInjury,
		TriggerReason:   "injury report scored " + b.level.String(),
	}
}

// BenchmarkWeeks returns the expected recovery time for an injury type.
func BenchmarkWeeks(injuryType string) float64 {
	t := strings.ToLower(injuryType)
	for key, weeks := range recoveryBenchmarkWeeks {
		if strings.Contains(t, key) {
			return weeks
		}
	}
	return defaultBenchmarkWeeks
}

func classifyCorrespondence(m Correspondence) Judgment {
	text := normalize(m.Subject + " " + m.Body)

	legal := matchTerms(text, legalThreatTerms)
	high := matchTerms(text, highUrgencyTerms)
	medium := matchTerms(text, mediumUrgencyTerms)
	medical := matchTerms(text, medicalTerms)

	urgency := UrgencyLow
	switch {
	case len(legal) > 0 || len(high) > 0:
		urgency = UrgencyHigh
	case len(medium) > 0:
		urgency = UrgencyMedium
	case len(medical) >= 3:
		urgency = UrgencyMedium
	}

	var b judgmentBuilder
	level := urgencyLevel(urgency)
	if len(legal) > 0 {
		b.add(level, "Legal threat language: "+strings.Join(legal, ", "), RecLegalThreat)
	}
	matched := make([]string, 0, len(high)+len(medium)+len(medical))
	matched = append(matched, high...)
	matched = append(matched, medium...)
	matched = append(matched, medical...)
	if urgency != UrgencyLow && len(matched) > 0 {
		b.add(level, fmt.Sprintf("Correspondence flagged %s urgency: %s", urgency, strings.Join(matched, ", ")))
	}
	b.add(level, "", correspondenceActions[urgency])

	return Judgment{
		RAG:             b.level,
		RiskFactors:     b.factors,
		Recommendations: b.recs,
		Confidence:      ConfidenceCorrespondence,
		TriggerReason:   fmt.Sprintf("correspondence classified %s urgency", urgency),
		Urgency:         urgency,
	}
}

func urgencyLevel(u Urgency) rag.Level {
	switch u {
	case UrgencyHigh:
		return rag.Red
	case UrgencyMedium:
		return rag.Amber
	}
	return rag.Green
}

// CorrespondenceUrgency classifies free text without building a judgment.
func CorrespondenceUrgency(m Correspondence) Urgency {
	return classifyCorrespondence(m).Urgency
}

func classifyDocument(d DocumentSignal) Judgment {
	class := d.Classification
	if class == "" {
		class = "unclassified"
	}
	return Judgment{
		RAG:             rag.Amber,
		RiskFactors:     []string{"Medical document received: " + class},
		Recommendations: []string{recDocumentReview},
		Confidence:      ConfidenceDocument,
		TriggerReason:   "document processed: " + class,
	}
}

// normalize lowercases s and collapses every non-alphanumeric run to a single
// space, padding both ends so terms match on word boundaries.
func normalize(s string) string {
	var sb strings.Builder
	sb.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			space = false
			continue
		}
		if !space {
			sb.WriteByte(' ')
			space = true
		}
	}
	if !space {
		sb.WriteByte(' ')
	}
	return sb.String()
}

func matchTerms(normalized string, terms []string) []string {
	var out []string
	for _, t := range terms {
		if strings.Contains(normalized, " "+t+" ") {
			out = append(out, t)
		}
	}
	return out
}
