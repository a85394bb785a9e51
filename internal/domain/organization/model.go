package organization

import (
	"time"

	"github.com/google/uuid"
)

// Organization is an employer whose cases the engine manages.
type Organization struct {
	ID                uuid.UUID `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	ProbationRequired bool      `db:"probation_required" json:"probation_required"`
	ProbationDays     *int      `db:"probation_days" json:"probation_days,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// Policy is the probation configuration consulted before a pre-employment
// check may pass.
type Policy struct {
	OrganizationID    uuid.UUID `json:"organization_id"`
	ProbationRequired bool      `json:"probation_required"`
	ProbationDays     *int      `json:"probation_days,omitempty"`
}

// Gap reports whether probation is mandatory but no period is configured.
func (p Policy) Gap() bool {
	return p.ProbationRequired && (p.ProbationDays == nil || *p.ProbationDays <= 0)
}

func (o *Organization) Policy() Policy {
	return Policy{
		OrganizationID:    o.ID,
		ProbationRequired: o.ProbationRequired,
		ProbationDays:     o.ProbationDays,
	}
}
