package compliance

import "time"

// StageID names one stage of the return-to-work workflow.
type StageID string

const (
	StageEligibility StageID = "eligibility_assessment"
	StageMonth2      StageID = "month_2_review"
	StageMonth3      StageID = "month_3_assessment"
	StageEscalation  StageID = "non_compliance_escalation"
	StageCompleted   StageID = "workflow_completed"
)

// StageDef fixes when a stage starts, how long it stays open and what
// follows it. Injury-anchored stages start OffsetDays after the injury
// date; event-anchored stages start on the day they are created.
type StageDef struct {
	ID            StageID
	OffsetDays    int
	WindowDays    int
	Next          StageID
	EventAnchored bool
	References    []string
}

var stages = map[StageID]StageDef{
	StageEligibility: {
		ID: StageEligibility, OffsetDays: 0, WindowDays: 14, Next: StageMonth2,
		References: []string{"WIRC Act 2013 s.104", "WIRC Act 2013 s.111"},
	},
	StageMonth2: {
		ID: StageMonth2, OffsetDays: 56, WindowDays: 14, Next: StageMonth3,
		References: []string{"WIRC Act 2013 s.105", "WorkSafe Claims Manual 5.3"},
	},
	StageMonth3: {
		ID: StageMonth3, OffsetDays: 84, WindowDays: 14, Next: StageCompleted,
		References: []string{"WIRC Act 2013 s.106", "WorkSafe Claims Manual 5.4"},
	},
	StageEscalation: {
		ID: StageEscalation, WindowDays: 7, Next: StageCompleted, EventAnchored: true,
		References: []string{"WIRC Act 2013 s.107", "WIRC Act 2013 s.111"},
	},
}

// Stage returns the definition for id.
func Stage(id StageID) (StageDef, bool) {
	d, ok := stages[id]
	return d, ok
}

// Window returns the start and deadline of the stage. anchor is the injury
// date for injury-anchored stages and the event date otherwise.
func (d StageDef) Window(anchor time.Time) (start, deadline time.Time) {
	start = dateOf(anchor)
	if !d.EventAnchored {
		start = start.AddDate(0, 0, d.OffsetDays)
	}
	return start, start.AddDate(0, 0, d.WindowDays)
}

// dateOf truncates t to a UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, day := t.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}
