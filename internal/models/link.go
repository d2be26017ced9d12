package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PatternTransactionLink is append-only: rows are created at pattern
// creation (seeding the historical series) and on every successful runtime
// match, and are never deleted (spec.md §3). The unique constraint on
// (pattern_id, transaction_id) is also the filter C1 uses to exclude
// already-claimed transactions from re-discovery.
type PatternTransactionLink struct {
	PatternID     uuid.UUID `json:"pattern_id" gorm:"type:uuid;primaryKey"`
	TransactionID uuid.UUID `json:"transaction_id" gorm:"type:uuid;primaryKey"`
	LinkedAt      time.Time `json:"linked_at" gorm:"not null"`

	// Metadata carries optional diagnostic context about why a transaction
	// was linked (e.g. "outlier" flag from amount clustering, step 5 of
	// the discovery pipeline). The matcher reads the outlier flag only to
	// leave outliers out of the amount window it rolls obligations from;
	// it is not part of the match test.
	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
}

func (PatternTransactionLink) TableName() string { return "pattern_transaction_links" }
