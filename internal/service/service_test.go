package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/coreerrors"
	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery"
	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
	"github.com/balajiparimelazhagan/fincoach-api/internal/locking"
	"github.com/balajiparimelazhagan/fincoach-api/internal/models"
	"github.com/balajiparimelazhagan/fincoach-api/internal/persistence"
	"github.com/balajiparimelazhagan/fincoach-api/internal/summarize"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Transaction{},
		&models.Pattern{},
		&models.PatternStreak{},
		&models.PatternTransactionLink{},
		&models.Obligation{},
	))
	return db
}

func newTestService(db *gorm.DB) *PatternService {
	repo := persistence.NewPatternRepo(db, zap.NewNop())
	cfg := discovery.Config{Tolerance: clustering.Tolerance{RelativePct: 0.1}, MinConfidence: 0.6, MinGroupSize: 3}
	return NewPatternService(db, zap.NewNop(), locking.NewMemoryLocker(), repo, cfg, nil)
}

func seedPattern(t *testing.T, db *gorm.DB, userID uuid.UUID, status models.PatternStatus) *models.Pattern {
	p := &models.Pattern{
		UserID:               userID,
		PayeeID:              uuid.New(),
		Direction:            models.DirectionDebit,
		CurrencyID:           "USD",
		IntervalDays:         30,
		PatternCase:          models.CaseFixedMonthly,
		AmountBehaviour:      models.AmountFixed,
		RepresentativeAmount: decimal.NewFromInt(500),
		AmountMin:            decimal.NewFromInt(500),
		AmountMax:            decimal.NewFromInt(500),
		DayWindowLow:         1,
		DayWindowHigh:        5,
		Status:               status,
		Confidence:           0.9,
		DetectionVersion:     1,
		LastEvaluatedAt:      time.Now().UTC(),
	}
	require.NoError(t, db.Create(p).Error)
	require.NoError(t, db.Create(&models.PatternStreak{PatternID: p.ID, ConfidenceMultiplier: 1.0}).Error)
	require.NoError(t, db.Create(&models.Obligation{
		PatternID:         p.ID,
		ExpectedDate:      time.Now().UTC().AddDate(0, 0, 5),
		ToleranceDays:     3,
		ExpectedMinAmount: decimal.NewFromInt(500),
		ExpectedMaxAmount: decimal.NewFromInt(500),
		Status:            models.ObligationExpected,
	}).Error)
	return p
}

// TestDiscover_ConflictWhenLockHeld mirrors spec.md §6's error table: a
// discovery run already in flight for the user surfaces as Conflict rather
// than blocking the caller.
func TestDiscover_ConflictWhenLockHeld(t *testing.T) {
	db := setupServiceTestDB(t)
	locker := locking.NewMemoryLocker()
	repo := persistence.NewPatternRepo(db, zap.NewNop())
	svc := NewPatternService(db, zap.NewNop(), locker, repo, discovery.Config{MinGroupSize: 3}, summarize.NullSummarizer{})

	userID := uuid.New()
	lease, err := locker.Acquire(context.Background(), "discovery:"+userID.String())
	require.NoError(t, err)
	defer lease.Release(context.Background())

	_, err = svc.Discover(context.Background(), userID, grouping.Filters{})
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeConflict, coreerrors.As(err))
}

func TestListPatterns_FiltersByUserAndStatus(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(db)

	userA := uuid.New()
	userB := uuid.New()
	seedPattern(t, db, userA, models.PatternActive)
	seedPattern(t, db, userA, models.PatternPaused)
	seedPattern(t, db, userB, models.PatternActive)

	all, err := svc.ListPatterns(context.Background(), userA, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active := models.PatternActive
	onlyActive, err := svc.ListPatterns(context.Background(), userA, &active)
	require.NoError(t, err)
	assert.Len(t, onlyActive, 1)
	assert.Equal(t, models.PatternActive, onlyActive[0].Status)
}

func TestGetPattern_NotFoundForWrongUser(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(db)

	owner := uuid.New()
	p := seedPattern(t, db, owner, models.PatternActive)

	_, err := svc.GetPattern(context.Background(), uuid.New(), p.ID)
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeNotFound, coreerrors.As(err))

	detail, err := svc.GetPattern(context.Background(), owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, detail.Pattern.ID)
	assert.Len(t, detail.Obligations, 1)
}

func TestUpdatePattern_PauseResumeDelete(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(db)

	owner := uuid.New()
	p := seedPattern(t, db, owner, models.PatternActive)

	paused, err := svc.UpdatePattern(context.Background(), owner, p.ID, ActionPause)
	require.NoError(t, err)
	assert.Equal(t, models.PatternPaused, paused.Status)

	resumed, err := svc.UpdatePattern(context.Background(), owner, p.ID, ActionResume)
	require.NoError(t, err)
	assert.Equal(t, models.PatternActive, resumed.Status)

	result, err := svc.UpdatePattern(context.Background(), owner, p.ID, ActionDelete)
	require.NoError(t, err)
	assert.Nil(t, result)

	var count int64
	require.NoError(t, db.Model(&models.Pattern{}).Where("id = ?", p.ID).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var obligationCount int64
	require.NoError(t, db.Model(&models.Obligation{}).Where("pattern_id = ?", p.ID).Count(&obligationCount).Error)
	assert.Equal(t, int64(0), obligationCount)
}

func TestUpdatePattern_UnknownActionIsInvalid(t *testing.T) {
	db := setupServiceTestDB(t)
	svc := newTestService(db)

	owner := uuid.New()
	p := seedPattern(t, db, owner, models.PatternActive)

	_, err := svc.UpdatePattern(context.Background(), owner, p.ID, PatternAction("unknown"))
	require.Error(t, err)
	assert.Equal(t, coreerrors.CodeInvalid, coreerrors.As(err))
}
