// Package disclosure produces the only risk summary that leaves the case
// team. A Disclosure carries three fields and nothing derived from evidence
// content or risk factors.
package disclosure

import (
	"github.com/gpnet/caseengine/internal/domain/evidence"
	"github.com/gpnet/caseengine/internal/domain/rag"
	"github.com/gpnet/caseengine/internal/domain/risk"
)

type Color string

const (
	ColorGreen  Color = "green"
	ColorYellow Color = "yellow"
	ColorRed    Color = "red"
)

const (
	StatementGreen           = "Check completed — no action required."
	StatementAmber           = "Check completed — monitor worker, supportive strategies may help."
	StatementRed             = "Check completed — high risk identified. Contact the case manager before proceeding."
	StatementRedMentalHealth = "Check completed — high risk identified. A confidential report has been provided to the case manager."
)

// Disclosure is the manager-visible view of a verdict.
type Disclosure struct {
	Color           Color  `json:"color"`
	ActionStatement string `json:"action_statement"`
	RequiresReport  bool   `json:"requires_report"`
}

// Default is returned whenever no verdict is available.
var Default = Disclosure{Color: ColorGreen, ActionStatement: StatementGreen}

// Disclose maps a verdict to its disclosure. Only the level and the
// mental-health context flag are read.
func Disclose(v *risk.Verdict, items []evidence.Item) Disclosure {
	if v == nil {
		return Default
	}
	switch v.RAG {
	case rag.Red:
		d := Disclosure{Color: ColorRed, ActionStatement: StatementRed, RequiresReport: true}
		if MentalHealthContext(items) {
			d.ActionStatement = StatementRedMentalHealth
		}
		return d
	case rag.Amber:
		return Disclosure{Color: ColorYellow, ActionStatement: StatementAmber}
	}
	return Default
}

// MentalHealthContext reports whether any form in items is a mental-health check.
func MentalHealthContext(items []evidence.Item) bool {
	for _, it := range items {
		if it.Kind != evidence.KindFormSubmission {
			continue
		}
		p, err := it.Decode()
		if err != nil {
			continue
		}
		if p.(evidence.FormSubmission).MentalHealthCheck {
			return true
		}
	}
	return false
}
