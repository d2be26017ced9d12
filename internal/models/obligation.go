package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Obligation is a single expected-then-resolved occurrence of a pattern.
// Exactly one obligation per active-or-paused pattern has status
// "expected" at rest (spec.md §8, property 2). Past obligations are never
// deleted.
type Obligation struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	PatternID       uuid.UUID        `json:"pattern_id" gorm:"type:uuid;not null;index"`
	ExpectedDate    time.Time        `json:"expected_date" gorm:"not null;index"`
	ToleranceDays   int              `json:"tolerance_days" gorm:"not null"`
	ExpectedMinAmount decimal.Decimal `json:"expected_min_amount" gorm:"type:numeric(20,4);not null"`
	ExpectedMaxAmount decimal.Decimal `json:"expected_max_amount" gorm:"type:numeric(20,4);not null"`

	Status ObligationStatus `json:"status" gorm:"type:varchar(16);not null;default:'expected';index"`

	FulfilledByTransactionID *uuid.UUID `json:"fulfilled_by_transaction_id,omitempty" gorm:"type:uuid"`
	FulfilledAt              *time.Time `json:"fulfilled_at,omitempty"`
	DaysEarly                *int       `json:"days_early,omitempty"`

	// DiagnosticData records repair events (spec.md §7) — e.g. that this
	// obligation was synthesized by the matcher's repair path rather than
	// by normal rolling, and why.
	DiagnosticData datatypes.JSON `json:"diagnostic_data,omitempty" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Obligation) TableName() string { return "obligations" }

func (o *Obligation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	return nil
}

func (o *Obligation) BeforeUpdate(tx *gorm.DB) error {
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Window returns the inclusive tolerance window [expected-tol, expected+tol]
// in whole days (spec.md §4.5 "Tolerance window semantics").
func (o *Obligation) Window() (time.Time, time.Time) {
	lo := o.ExpectedDate.AddDate(0, 0, -o.ToleranceDays)
	hi := o.ExpectedDate.AddDate(0, 0, o.ToleranceDays)
	return lo, hi
}

// Matches reports whether a transaction occurring on date d falls within
// this obligation's tolerance window. Amount is deliberately not part of
// this test (spec.md §4.5, §8 property 4).
func (o *Obligation) Matches(d time.Time) bool {
	lo, hi := o.Window()
	dd := truncateToDate(d)
	return !dd.Before(truncateToDate(lo)) && !dd.After(truncateToDate(hi))
}

func truncateToDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
