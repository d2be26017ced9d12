// Package service wires C1-C4 (grouping, splitting, discovery, persistence)
// into the Discover command and exposes read/administration operations over
// patterns, streaks, and obligations for the HTTP surface (spec.md §6).
// It owns the per-user advisory lock the discovery path requires (spec.md
// §5) and is the only caller of PatternRepo.UpsertPattern outside tests.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/coreerrors"
	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery"
	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
	"github.com/balajiparimelazhagan/fincoach-api/internal/locking"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
	"github.com/balajiparimelazhagan/fincoach-api/internal/persistence"
	"github.com/balajiparimelazhagan/fincoach-api/internal/summarize"
)

// PatternService is the handler-facing orchestration layer: it sequences
// C1-C4 for Discover and serves the read/administration commands directly
// off the pattern tables.
type PatternService struct {
	db         *gorm.DB
	logger     *zap.Logger
	locker     locking.Locker
	repo       *persistence.PatternRepo
	cfg        discovery.Config
	summarizer summarize.Summarizer
}

func NewPatternService(db *gorm.DB, logger *zap.Logger, locker locking.Locker, repo *persistence.PatternRepo, cfg discovery.Config, summarizer summarize.Summarizer) *PatternService {
	if summarizer == nil {
		summarizer = summarize.NullSummarizer{}
	}
	return &PatternService{db: db, logger: logger, locker: locker, repo: repo, cfg: cfg, summarizer: summarizer}
}

// PatternOutcome is one upserted pattern in a Discover response, paired
// with whether it was newly created this run (spec.md §6 "Discover").
type PatternOutcome struct {
	Pattern *models.Pattern
	Created bool
}

// DiscoverResult is the full response of one Discover invocation.
type DiscoverResult struct {
	Patterns   []PatternOutcome
	Rejections []discovery.Rejection
}

// discoveryLockTTL bounds how long the per-user advisory lock is held;
// a single user's discovery run is bulk but in-memory (spec.md §5), so a
// few minutes comfortably covers even a large transaction history.
const discoveryLockTTL = 5 * time.Minute

// Discover runs C1->C2->C3->C4 for userID under the per-user advisory lock
// (spec.md §4.1-§4.4, §5). A discovery already in flight for this user
// surfaces as Conflict rather than blocking, per spec.md §6's error table.
func (s *PatternService) Discover(ctx context.Context, userID uuid.UUID, filters grouping.Filters) (DiscoverResult, error) {
	lockKey := fmt.Sprintf("discovery:%s", userID)
	lease, err := s.locker.Acquire(ctx, lockKey)
	if err != nil {
		if err == locking.ErrLocked {
			return DiscoverResult{}, coreerrors.Conflict("a discovery run is already in flight for this user")
		}
		return DiscoverResult{}, coreerrors.Retryable("acquire discovery lock", err)
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			s.logger.Warn("failed to release discovery lock", zap.String("key", lockKey), zap.Error(releaseErr))
		}
	}()

	runResult, err := discovery.RunForUser(ctx, s.db, s.logger, userID, filters, s.cfg)
	if err != nil {
		return DiscoverResult{}, coreerrors.Retryable("run discovery pipeline", err)
	}

	result := DiscoverResult{Rejections: runResult.Rejections}
	for _, candidate := range runResult.Candidates {
		upserted, err := s.repo.UpsertPattern(ctx, candidate)
		if err != nil {
			return DiscoverResult{}, coreerrors.Retryable("upsert pattern", err)
		}
		s.annotate(ctx, upserted.Pattern)
		result.Patterns = append(result.Patterns, PatternOutcome{Pattern: upserted.Pattern, Created: upserted.Created})
	}

	return result, nil
}

// annotate asks the advisory summariser for an explanation and writes it to
// Pattern.Annotation, logging (never failing the request) on error. It
// never influences p.Status, p.Confidence, or any detection field
// (spec.md §9: "An LLM veto may annotate the pattern but must not delete
// it" generalizes to: the summariser never vetoes anything here).
func (s *PatternService) annotate(ctx context.Context, p *models.Pattern) {
	text, err := s.summarizer.Summarize(ctx, summarize.Input{
		PatternCase:          string(p.PatternCase),
		AmountBehaviour:      string(p.AmountBehaviour),
		IntervalDays:         p.IntervalDays,
		RepresentativeAmount: p.RepresentativeAmount.String(),
		Confidence:           p.Confidence,
	})
	if err != nil {
		s.logger.Warn("advisory summarisation failed", zap.String("pattern_id", p.ID.String()), zap.Error(err))
		return
	}
	if text == "" {
		return
	}
	p.Annotation = text
	if err := s.db.WithContext(ctx).Model(p).Update("annotation", text).Error; err != nil {
		s.logger.Warn("failed to persist pattern annotation", zap.String("pattern_id", p.ID.String()), zap.Error(err))
	}
}

// ListPatterns returns a user's patterns, optionally filtered by status
// (spec.md §6 "ListPatterns").
func (s *PatternService) ListPatterns(ctx context.Context, userID uuid.UUID, status *models.PatternStatus) ([]models.Pattern, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var patterns []models.Pattern
	if err := query.Order("created_at DESC").Find(&patterns).Error; err != nil {
		return nil, coreerrors.Retryable("list patterns", err)
	}
	return patterns, nil
}

// PatternDetail bundles a pattern with its streak and recent obligations
// (spec.md §6 "GetPattern").
type PatternDetail struct {
	Pattern    models.Pattern
	Streak     models.PatternStreak
	Obligations []models.Obligation
}

const defaultObligationHistory = 20

// GetPattern returns one pattern owned by userID, its streak, and its last
// N obligations ordered most-recent-first.
func (s *PatternService) GetPattern(ctx context.Context, userID, patternID uuid.UUID) (*PatternDetail, error) {
	var p models.Pattern
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", patternID, userID).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, coreerrors.NotFound(fmt.Sprintf("pattern %s not found", patternID))
		}
		return nil, coreerrors.Retryable("load pattern", err)
	}

	var streak models.PatternStreak
	if err := s.db.WithContext(ctx).Where("pattern_id = ?", patternID).First(&streak).Error; err != nil && err != gorm.ErrRecordNotFound {
		return nil, coreerrors.Retryable("load streak", err)
	}

	var obligations []models.Obligation
	if err := s.db.WithContext(ctx).
		Where("pattern_id = ?", patternID).
		Order("expected_date DESC").
		Limit(defaultObligationHistory).
		Find(&obligations).Error; err != nil {
		return nil, coreerrors.Retryable("load obligations", err)
	}

	return &PatternDetail{Pattern: p, Streak: streak, Obligations: obligations}, nil
}

// ObligationFilter restricts GetObligations to a status and/or a date
// window (spec.md §6 "GetObligation").
type ObligationFilter struct {
	Status *models.ObligationStatus
	From   *time.Time
	To     *time.Time
}

// GetObligations returns obligations for one pattern owned by userID.
func (s *PatternService) GetObligations(ctx context.Context, userID, patternID uuid.UUID, filter ObligationFilter) ([]models.Obligation, error) {
	var p models.Pattern
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", patternID, userID).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, coreerrors.NotFound(fmt.Sprintf("pattern %s not found", patternID))
		}
		return nil, coreerrors.Retryable("load pattern", err)
	}

	query := s.db.WithContext(ctx).Where("pattern_id = ?", patternID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("expected_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("expected_date <= ?", *filter.To)
	}

	var obligations []models.Obligation
	if err := query.Order("expected_date DESC").Find(&obligations).Error; err != nil {
		return nil, coreerrors.Retryable("list obligations", err)
	}
	return obligations, nil
}

// ListUpcoming returns pending obligations across every pattern owned by
// userID due within days days, sorted by expected_date ascending (spec.md
// §6 "ListUpcoming").
func (s *PatternService) ListUpcoming(ctx context.Context, userID uuid.UUID, days int) ([]models.Obligation, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, days)

	var obligations []models.Obligation
	err := s.db.WithContext(ctx).
		Joins("JOIN patterns ON patterns.id = obligations.pattern_id").
		Where("patterns.user_id = ? AND obligations.status = ? AND obligations.expected_date <= ?",
			userID, models.ObligationExpected, cutoff).
		Order("obligations.expected_date ASC").
		Find(&obligations).Error
	if err != nil {
		return nil, coreerrors.Retryable("list upcoming obligations", err)
	}
	return obligations, nil
}

// PatternAction is a user-initiated lifecycle transition (spec.md §6
// "UpdatePattern": pause, resume, or hard-delete).
type PatternAction string

const (
	ActionPause  PatternAction = "pause"
	ActionResume PatternAction = "resume"
	ActionDelete PatternAction = "delete"
)

// UpdatePattern applies a user-initiated lifecycle transition. Delete
// cascades to the streak, obligations, and links inside one transaction
// and must be explicitly requested (spec.md §6: "must be confirmed
// explicitly").
func (s *PatternService) UpdatePattern(ctx context.Context, userID, patternID uuid.UUID, action PatternAction) (*models.Pattern, error) {
	var p models.Pattern
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", patternID, userID).First(&p).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, coreerrors.NotFound(fmt.Sprintf("pattern %s not found", patternID))
		}
		return nil, coreerrors.Retryable("load pattern", err)
	}

	switch action {
	case ActionPause:
		p.Status = models.PatternPaused
		if err := s.db.WithContext(ctx).Save(&p).Error; err != nil {
			return nil, coreerrors.Retryable("pause pattern", err)
		}
		return &p, nil
	case ActionResume:
		p.Status = models.PatternActive
		if err := s.db.WithContext(ctx).Save(&p).Error; err != nil {
			return nil, coreerrors.Retryable("resume pattern", err)
		}
		return &p, nil
	case ActionDelete:
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("pattern_id = ?", p.ID).Delete(&models.Obligation{}).Error; err != nil {
				return err
			}
			if err := tx.Where("pattern_id = ?", p.ID).Delete(&models.PatternTransactionLink{}).Error; err != nil {
				return err
			}
			if err := tx.Where("pattern_id = ?", p.ID).Delete(&models.PatternStreak{}).Error; err != nil {
				return err
			}
			return tx.Delete(&p).Error
		})
		if err != nil {
			return nil, coreerrors.Retryable("delete pattern", err)
		}
		return nil, nil
	default:
		return nil, coreerrors.Invalid(fmt.Sprintf("unknown pattern action %q", action))
	}
}
