// Package grouping implements C1 of the pattern engine: producing candidate
// transaction groups for the discovery path (spec.md §4.1).
package grouping

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
)

// Key is the grouping identity: currency and direction never mix within a
// group (spec.md §4.1 "Contract").
type Key struct {
	PayeeID    uuid.UUID
	Direction  models.Direction
	CurrencyID string
}

// Group is one candidate series of a user's transactions sharing Key, with
// transactions already claimed by an existing pattern removed.
type Group struct {
	Key          Key
	Transactions []models.Transaction
}

// DroppedGroup records a group that did not meet the minimum size after
// filtering, with a reason code for observability (spec.md §4.1 "dropped
// with a reason code").
type DroppedGroup struct {
	Key    Key
	Reason string
	Count  int
}

// Filters restrict BuildCandidateGroups to a subset of a user's payees or a
// single direction (spec.md §4.1 "optional filters").
type Filters struct {
	PayeeID   *uuid.UUID
	Direction *models.Direction
}

const minGroupSizeDefault = 3

// BuildCandidateGroups loads a user's transactions, buckets them by
// (payee, direction, currency), strips out transactions already linked to
// any pattern sharing that key (the monotonicity guarantee that keeps
// re-discovery from reprocessing known series), and drops any resulting
// group below minGroupSize. It is a pure function of the persisted state:
// running it twice with no new transactions returns the same groups.
func BuildCandidateGroups(ctx context.Context, db *gorm.DB, logger *zap.Logger, userID uuid.UUID, filters Filters, minGroupSize int) ([]Group, []DroppedGroup, error) {
	if minGroupSize <= 0 {
		minGroupSize = minGroupSizeDefault
	}

	query := db.WithContext(ctx).Where("user_id = ?", userID)
	if filters.PayeeID != nil {
		query = query.Where("payee_id = ?", *filters.PayeeID)
	}
	if filters.Direction != nil {
		query = query.Where("direction = ?", *filters.Direction)
	}

	var txs []models.Transaction
	if err := query.Order("occurred_at ASC").Find(&txs).Error; err != nil {
		return nil, nil, fmt.Errorf("load transactions: %w", err)
	}

	if len(txs) == 0 {
		return nil, nil, nil
	}

	linked, err := loadLinkedTransactionIDs(ctx, db, userID)
	if err != nil {
		return nil, nil, err
	}

	buckets := make(map[Key][]models.Transaction)
	for _, tx := range txs {
		if linked[tx.ID] {
			continue
		}
		k := Key{PayeeID: tx.PayeeID, Direction: tx.Direction, CurrencyID: tx.CurrencyID}
		buckets[k] = append(buckets[k], tx)
	}

	var groups []Group
	var dropped []DroppedGroup
	for k, bucket := range buckets {
		if len(bucket) < minGroupSize {
			dropped = append(dropped, DroppedGroup{Key: k, Reason: "below_minimum_group_size", Count: len(bucket)})
			continue
		}
		groups = append(groups, Group{Key: k, Transactions: bucket})
	}

	logger.Info("built candidate groups",
		zap.String("user_id", userID.String()),
		zap.Int("groups", len(groups)),
		zap.Int("dropped", len(dropped)))

	return groups, dropped, nil
}

// loadLinkedTransactionIDs returns the set of transaction IDs already
// claimed by some pattern belonging to userID, across every pattern sharing
// that user — this is the "already assigned" filter of spec.md §4.1, keyed
// only by user so it is correct regardless of which specific pattern a
// transaction was linked to.
func loadLinkedTransactionIDs(ctx context.Context, db *gorm.DB, userID uuid.UUID) (map[uuid.UUID]bool, error) {
	var ids []uuid.UUID
	err := db.WithContext(ctx).
		Model(&models.PatternTransactionLink{}).
		Joins("JOIN patterns ON patterns.id = pattern_transaction_links.pattern_id").
		Where("patterns.user_id = ?", userID).
		Pluck("pattern_transaction_links.transaction_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load linked transaction ids: %w", err)
	}

	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
