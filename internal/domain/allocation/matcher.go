package allocation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/gpnet/caseengine/internal/domain/casefile"
)

// Weights are the scoring tunables. BalanceWeight and ResponseWeight are
// fractions in [0,1].
type Weights struct {
	BaseScore             float64
	Priority              map[casefile.Priority]float64
	SpecializationBonus   float64
	CompanyBonus          float64
	MaxCaseload           int
	BalanceWeight         float64
	ResponseWeight        float64
	ResponseCeilingDays   float64
	AvailabilityThreshold float64
	RebalanceSpread       int
	RebalanceMaxMoves     int
}

// DefaultWeights matches the configuration defaults.
func DefaultWeights() Weights {
	return Weights{
		BaseScore: 50,
		Priority: map[casefile.Priority]float64{
			casefile.PriorityUrgent: 20,
			casefile.PriorityHigh:   15,
			casefile.PriorityMedium: 10,
			casefile.PriorityLow:    5,
		},
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
}

// Request describes the case being placed.
type Request struct {
	CaseID                  uuid.UUID
	OrganizationID          uuid.UUID
	Priority                casefile.Priority
	RequiredSpecializations []string
}

func requestFor(c *casefile.Case) Request {
	return Request{
		CaseID:                  c.ID,
		OrganizationID:          c.OrganizationID,
		Priority:                c.Priority,
		RequiredSpecializations: c.RequiredSpecializations,
	}
}

// Matcher scores coordinators against a request. It holds no state beyond
// its weights.
type Matcher struct {
	w Weights
}

func NewMatcher(w Weights) *Matcher {
	if w.MaxCaseload <= 0 {
		w.MaxCaseload = 1
	}
	if w.ResponseCeilingDays <= 0 {
		w.ResponseCeilingDays = 1
	}
	return &Matcher{w: w}
}

// Eligible reports whether c passes the availability filter.
func (m *Matcher) Eligible(c Coordinator) bool {
	return c.Availability.Score() >= m.w.AvailabilityThreshold
}

// Score computes the composite score of c for req. history reports whether
// c has handled the request's organization before.
func (m *Matcher) Score(req Request, c Coordinator, history bool) (float64, []string) {
	w := m.w
	score := w.BaseScore
	var reasons []string

	if p := w.Priority[req.Priority]; p != 0 {
		score += p
		reasons = append(reasons, fmt.Sprintf("%s priority", req.Priority))
	}
	if matched := intersect(req.RequiredSpecializations, c.Specializations); len(matched) > 0 {
		score += w.SpecializationBonus
		reasons = append(reasons, "specialization match: "+strings.Join(matched, ", "))
	}
	if history {
		score += w.CompanyBonus
		reasons = append(reasons, "prior work with organization")
	}

	load := float64(c.CurrentCaseload) / float64(w.MaxCaseload)
	score -= w.BalanceWeight * 100 * load
	reasons = append(reasons, fmt.Sprintf("caseload %d/%d", c.CurrentCaseload, w.MaxCaseload))

	speed := 1 - math.Min(c.AvgCompletionDays/w.ResponseCeilingDays, 1)
	score += w.ResponseWeight * 100 * speed
	if c.AvgCompletionDays > 0 {
		reasons = append(reasons, fmt.Sprintf("average completion %.1f days", c.AvgCompletionDays))
	}
	return score, reasons
}

// maxAttainable is the score of a perfect candidate for the highest priority.
func (m *Matcher) maxAttainable() float64 {
	top := 0.0
	for _, p := range m.w.Priority {
		top = math.Max(top, p)
	}
	return m.w.BaseScore + top + m.w.SpecializationBonus + m.w.CompanyBonus + m.w.ResponseWeight*100
}

func (m *Matcher) confidence(score float64) int {
	ceiling := m.maxAttainable()
	if ceiling <= 0 {
		return 0
	}
	c := score / ceiling * 100
	return int(math.Round(math.Max(0, math.Min(100, c))))
}

// Rank scores every eligible coordinator, best first. Ties go to the lower
// caseload, then to the lower id.
func (m *Matcher) Rank(req Request, coordinators []Coordinator, history map[uuid.UUID]bool) []Candidate {
	var out []Candidate
	for _, c := range coordinators {
		if !m.Eligible(c) {
			continue
		}
		score, reasons := m.Score(req, c, history[c.ID])
		out = append(out, Candidate{
			CoordinatorID: c.ID,
			Name:          c.Name,
			Score:         score,
			Confidence:    m.confidence(score),
			Caseload:      c.CurrentCaseload,
			Reasons:       reasons,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Caseload != out[j].Caseload {
			return out[i].Caseload < out[j].Caseload
		}
		return out[i].CoordinatorID.String() < out[j].CoordinatorID.String()
	})
	return out
}

// Conflicts lists the reasons c is a poor fit for req.
func (m *Matcher) Conflicts(req Request, c Coordinator, history bool) []Conflict {
	out := []Conflict{}
	if c.CurrentCaseload >= m.w.MaxCaseload {
		out = append(out, Conflict{
			Type:        ConflictOverCapacity,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("caseload %d at or above the ceiling of %d", c.CurrentCaseload, m.w.MaxCaseload),
		})
	}
	if !m.Eligible(c) {
		out = append(out, Conflict{
			Type:        ConflictUnavailable,
			Severity:    SeverityHigh,
			Description: fmt.Sprintf("coordinator is %s", c.Availability),
		})
	}
	if len(req.RequiredSpecializations) > 0 && len(intersect(req.RequiredSpecializations, c.Specializations)) == 0 {
		out = append(out, Conflict{
			Type:        ConflictSpecialization,
			Severity:    SeverityMedium,
			Description: "no required specialization: " + strings.Join(req.RequiredSpecializations, ", "),
		})
	}
	if !history {
		out = append(out, Conflict{
			Type:        ConflictNoHistory,
			Severity:    SeverityLow,
			Description: "no previous cases with this organization",
		})
	}
	return out
}

func hasHigh(conflicts []Conflict) bool {
	for _, c := range conflicts {
		if c.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// intersect returns the required tags present in have, case-insensitively.
func intersect(required, have []string) []string {
	var out []string
	for _, r := range required {
		for _, h := range have {
			if strings.EqualFold(r, h) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// covers reports whether have holds every tag in required.
func covers(have, required []string) bool {
	return len(intersect(required, have)) == len(required)
}
