package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction is an immutable fact written by the upstream ingestion
// pipeline (out of core, see SPEC_FULL.md). The discovery and matching
// components never write to this table; they only read it.
type Transaction struct {
	ID              uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index:idx_tx_key"`
	PayeeID         uuid.UUID       `json:"payee_id" gorm:"type:uuid;not null;index:idx_tx_key"`
	Direction       Direction       `json:"direction" gorm:"type:varchar(16);not null;index:idx_tx_key"`
	CurrencyID      string          `json:"currency_id" gorm:"type:varchar(8);not null;index:idx_tx_key"`
	OccurredAt      time.Time       `json:"occurred_at" gorm:"not null;index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric(20,4);not null"`
	SourceMessageID string          `json:"source_message_id" gorm:"uniqueIndex;not null"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (Transaction) TableName() string { return "transactions" }
