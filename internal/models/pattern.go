package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Pattern is a discovered recurring series. Several patterns may share the
// same (user, payee, direction, currency) quadruple — one per independently
// discovered series (spec.md §3). Natural-key identity for idempotent
// re-discovery additionally includes an amount band and a day-of-month
// window (spec.md §4.4); those two fields are what the splitter (C2)
// computed the cluster from, not derived fields recomputed at query time.
type Pattern struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_pattern_key"`
	PayeeID    uuid.UUID `json:"payee_id" gorm:"type:uuid;not null;index:idx_pattern_key"`
	Direction  Direction `json:"direction" gorm:"type:varchar(16);not null;index:idx_pattern_key"`
	CurrencyID string    `json:"currency_id" gorm:"type:varchar(8);not null;index:idx_pattern_key"`

	IntervalDays    int             `json:"interval_days" gorm:"not null"`
	PatternCase     PatternCase     `json:"pattern_case" gorm:"type:varchar(32);not null"`
	AmountBehaviour AmountBehaviour `json:"amount_behaviour" gorm:"type:varchar(32);not null"`

	RepresentativeAmount decimal.Decimal `json:"representative_amount" gorm:"type:numeric(20,4);not null"`
	AmountMin            decimal.Decimal `json:"amount_min" gorm:"type:numeric(20,4);not null"`
	AmountMax            decimal.Decimal `json:"amount_max" gorm:"type:numeric(20,4);not null"`

	// DayOfMonthHint is the rounded median day of month for monthly-family
	// patterns (nil for cases where day-of-month is not a meaningful hint).
	DayOfMonthHint *int `json:"day_of_month_hint,omitempty"`
	// DayWindowLow/DayWindowHigh are the natural-key day-of-month window
	// produced by the splitter (C2); used for idempotent re-discovery.
	DayWindowLow  int `json:"day_window_low" gorm:"not null"`
	DayWindowHigh int `json:"day_window_high" gorm:"not null"`

	Status           PatternStatus `json:"status" gorm:"type:varchar(16);not null;default:'active';index"`
	Confidence       float64       `json:"confidence" gorm:"not null"`
	DetectionVersion int           `json:"detection_version" gorm:"not null;default:1"`
	LastEvaluatedAt  time.Time     `json:"last_evaluated_at"`

	// Annotation is the optional, advisory, post-hoc natural-language
	// explanation fed by an external summariser (spec.md §9). Never
	// influences detection or matching.
	Annotation string `json:"annotation,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Pattern) TableName() string { return "patterns" }

func (p *Pattern) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

func (p *Pattern) BeforeUpdate(tx *gorm.DB) error {
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// NaturalKey returns the tuple upsert_pattern matches patterns on
// (spec.md §4.4): identity plus the amount band and day window the
// splitter assigned the candidate cluster to.
type NaturalKey struct {
	UserID        uuid.UUID
	PayeeID       uuid.UUID
	Direction     Direction
	CurrencyID    string
	AmountMin     decimal.Decimal
	AmountMax     decimal.Decimal
	DayWindowLow  int
	DayWindowHigh int
}
