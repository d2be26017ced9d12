// Package discovery implements C3, the pattern discovery engine (spec.md
// §4.3): turning a candidate cluster from grouping/clustering into a
// PatternCandidate, or rejecting it with a reason at whichever pipeline
// stage fails first.
package discovery

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/balajiparimelazhagan/fincoach-api/internal/clustering"
	"github.com/balajiparimelazhagan/fincoach-api/internal/discovery/caserules"
	"github.com/balajiparimelazhagan/fincoach-api/internal/grouping"
)

var tracer = otel.Tracer("fincoach-api/discovery")

// Config holds the tunable thresholds the pipeline is evaluated against,
// sourced from internal/config.DetectionConfig.
type Config struct {
	Tolerance     clustering.Tolerance
	MinConfidence float64
	MinGroupSize  int
}

// Result is everything a single run of RunForUser produced, for the caller
// to log and/or hand to persistence.
type Result struct {
	Candidates []PatternCandidate
	Rejections []Rejection
}

// RunForUser executes the full discovery pipeline for one user: C1 grouping,
// C2 splitting, and the C3 per-cluster pipeline below, emitting either a
// PatternCandidate or a Rejection for every cluster considered.
func RunForUser(ctx context.Context, db *gorm.DB, logger *zap.Logger, userID uuid.UUID, filters grouping.Filters, cfg Config) (Result, error) {
	ctx, span := tracer.Start(ctx, "discovery.RunForUser")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID.String()))

	groups, dropped, err := grouping.BuildCandidateGroups(ctx, db, logger, userID, filters, cfg.MinGroupSize)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, dg := range dropped {
		result.Rejections = append(result.Rejections, Rejection{Key: dg.Key, Reason: dg.Reason})
	}

	for _, g := range groups {
		clusters := clustering.Split(g.Transactions, cfg.Tolerance)
		for _, c := range clusters {
			candidate, rejection := evaluateCluster(ctx, g.Key, userID, c, cfg)
			if rejection != nil {
				result.Rejections = append(result.Rejections, *rejection)
				continue
			}
			result.Candidates = append(result.Candidates, *candidate)
		}
	}

	logger.Info("discovery run complete",
		zap.String("user_id", userID.String()),
		zap.Int("candidates", len(result.Candidates)),
		zap.Int("rejections", len(result.Rejections)))

	return result, nil
}

// evaluateCluster runs one cluster through pipeline steps 0-9 (spec.md
// §4.3), returning either a PatternCandidate or a Rejection — never both.
func evaluateCluster(ctx context.Context, key grouping.Key, userID uuid.UUID, cluster clustering.Cluster, cfg Config) (*PatternCandidate, *Rejection) {
	_, span := tracer.Start(ctx, "discovery.evaluateCluster")
	defer span.End()

	reject := func(reason string) (*PatternCandidate, *Rejection) {
		span.SetAttributes(attribute.String("rejection_reason", reason))
		return nil, &Rejection{Key: key, Reason: reason}
	}

	// Step 0: validate.
	txs := sortAndDedupe(cluster.Transactions)
	if len(txs) < minClusterTransactions {
		return reject(ReasonTooFewTransactions)
	}

	// Steps 1-2: intervals, too-frequent check.
	intervals := computeIntervals(txs)
	if reason, bad := tooFrequent(txs, intervals); bad {
		return reject(reason)
	}

	// Step 3: stability.
	stability := detectStableInterval(intervals)
	if !stability.Stable {
		return reject(ReasonUnstableInterval)
	}

	// Step 4: classify case family from the candidate interval.
	family, ok := caserules.Classify(stability.CandidateDays)
	if !ok {
		return reject(ReasonIntervalOutOfRange)
	}

	// Step 5: amount clustering inside the cluster.
	band, ok := splitAmountOutliers(txs, cfg.Tolerance)
	if !ok {
		return reject("amount_band_below_inlier_threshold")
	}

	// Step 6: recompute interval stability without outliers; reject if it
	// no longer passes step 3.
	if len(band.Outliers) > 0 {
		recomputed := detectStableInterval(computeIntervals(sortAndDedupe(band.Inliers)))
		if !recomputed.Stable {
			return reject("unstable_interval_after_outlier_removal")
		}
		stability = recomputed
	}

	// Step 7: amount behaviour.
	cv := amountCV(band.Inliers)
	behaviour := classifyAmountBehaviour(cv)

	patternCase := caserules.CaseForFamily(family)
	monthlyFamily := family == caserules.FamilyMonthly
	if monthlyFamily {
		patternCase = caserules.ResolveMonthlyCase(behaviour)
	}

	// Step 8: confidence scoring.
	dayOfMonths := make([]int, len(band.Inliers))
	for i, tx := range band.Inliers {
		dayOfMonths[i] = tx.OccurredAt.Day()
	}
	confidence := scoreConfidence(confidenceInputs{
		IntervalCV:  stability.CV,
		AmountCV:    cv,
		DayOfMonths: dayOfMonths,
		SampleSize:  len(txs),
		PatternCase: patternCase,
	})
	minConf := cfg.MinConfidence
	if minConf == 0 {
		minConf = minConfidence
	}
	if confidence < minConf {
		return reject("confidence_below_threshold")
	}

	// Step 9: emit.
	candidate := buildCandidate(key, userID, band, stability, patternCase, behaviour, confidence, cluster.DayWindowLow, cluster.DayWindowHigh, monthlyFamily)
	return &candidate, nil
}
