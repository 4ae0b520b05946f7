package domain

import (
	"fmt"
	"strings"
	"time"
)

// Position is the job position of a worker.
type Position string

const (
	PositionDirector Position = "DIRECTOR"
	PositionLaborer  Position = "LABORER"
	PositionBaker    Position = "BAKER"
	PositionCook     Position = "COOK"
)

// Positions lists every valid Position value.
var Positions = []Position{PositionDirector, PositionLaborer, PositionBaker, PositionCook}

// ParsePosition converts a string into a Position. The empty string is valid
// and means "no position".
func ParsePosition(s string) (Position, error) {
	if s == "" {
		return "", nil
	}
	p := Position(strings.ToUpper(s))
	for _, known := range Positions {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown position %q (expected one of: %s)", s, joinPositions())
}

func joinPositions() string {
	names := make([]string, len(Positions))
	for i, p := range Positions {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

// OrganizationType classifies the organization a worker belongs to.
type OrganizationType string

const (
	OrgPublic                OrganizationType = "PUBLIC"
	OrgGovernment            OrganizationType = "GOVERNMENT"
	OrgTrust                 OrganizationType = "TRUST"
	OrgPrivateLimitedCompany OrganizationType = "PRIVATE_LIMITED_COMPANY"
	OrgOpenJointStockCompany OrganizationType = "OPEN_JOINT_STOCK_COMPANY"
)

// OrganizationTypes lists every valid OrganizationType value.
var OrganizationTypes = []OrganizationType{
	OrgPublic, OrgGovernment, OrgTrust, OrgPrivateLimitedCompany, OrgOpenJointStockCompany,
}

// ParseOrganizationType converts a string into an OrganizationType.
// Unlike Position, the type is required, so the empty string is rejected.
func ParseOrganizationType(s string) (OrganizationType, error) {
	ot := OrganizationType(strings.ToUpper(s))
	for _, known := range OrganizationTypes {
		if ot == known {
			return ot, nil
		}
	}
	names := make([]string, len(OrganizationTypes))
	for i, t := range OrganizationTypes {
		names[i] = string(t)
	}
	return "", fmt.Errorf("unknown organization type %q (expected one of: %s)", s, strings.Join(names, ", "))
}

// Coordinates is the location of a worker. Y must be strictly greater than -72.
type Coordinates struct {
	X float32 `json:"x"`
	Y float64 `json:"y" validate:"gt=-72"`
}

// Organization describes the worker's employer. AnnualTurnover is optional but
// must be positive when present.
type Organization struct {
	AnnualTurnover *int32           `json:"annual_turnover,omitempty" validate:"omitempty,gt=0"`
	Type           OrganizationType `json:"type" validate:"required,oneof=PUBLIC GOVERNMENT TRUST PRIVATE_LIMITED_COMPANY OPEN_JOINT_STOCK_COMPANY"`
}

// Worker is the record clients manipulate. ID, CreationDate and OwnerID are
// assigned server-side on creation and are never overwritten by client input.
type Worker struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name" validate:"required"`
	Coordinates  Coordinates  `json:"coordinates"`
	CreationDate time.Time    `json:"creation_date"`
	Salary       *int64       `json:"salary,omitempty" validate:"omitempty,gt=0"`
	StartDate    time.Time    `json:"start_date" validate:"required"`
	EndDate      *time.Time   `json:"end_date,omitempty"`
	Position     Position     `json:"position,omitempty" validate:"omitempty,oneof=DIRECTOR LABORER BAKER COOK"`
	Organization Organization `json:"organization"`
	OwnerID      int64        `json:"owner_id"`
}

// CompareByID orders workers by id ascending, the collection's natural order.
// An unset id (zero, not yet persisted) sorts before every assigned id.
func CompareByID(a, b Worker) int {
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// CompareByLocation orders workers by coordinates, x first then y. Used by the
// show projection.
func CompareByLocation(a, b Worker) int {
	switch {
	case a.Coordinates.X < b.Coordinates.X:
		return -1
	case a.Coordinates.X > b.Coordinates.X:
		return 1
	case a.Coordinates.Y < b.Coordinates.Y:
		return -1
	case a.Coordinates.Y > b.Coordinates.Y:
		return 1
	default:
		return 0
	}
}

// Clone returns a deep copy so callers can hand out workers without aliasing
// the store's backing slice.
func (w Worker) Clone() Worker {
	c := w
	if w.Salary != nil {
		s := *w.Salary
		c.Salary = &s
	}
	if w.EndDate != nil {
		e := *w.EndDate
		c.EndDate = &e
	}
	if w.Organization.AnnualTurnover != nil {
		t := *w.Organization.AnnualTurnover
		c.Organization.AnnualTurnover = &t
	}
	return c
}

func (w Worker) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Worker{id=%d, name=%q, x=%v, y=%v", w.ID, w.Name, w.Coordinates.X, w.Coordinates.Y)
	if w.Salary != nil {
		fmt.Fprintf(&b, ", salary=%d", *w.Salary)
	}
	if w.Position != "" {
		fmt.Fprintf(&b, ", position=%s", w.Position)
	}
	fmt.Fprintf(&b, ", org=%s, owner=%d}", w.Organization.Type, w.OwnerID)
	return b.String()
}
