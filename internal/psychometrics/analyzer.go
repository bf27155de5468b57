package psychometrics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/metriq-ai/metriq/internal/model"
	"github.com/metriq-ai/metriq/internal/storage"
)

// Config is the psychometric slice of application configuration.
type Config struct {
	MinItemResponses     int64         // responses before an item is analysed
	MinReliabilitySample int64         // respondents before alpha is banded
	ReviewDwell          time.Duration // flagged-for-review dwell before retirement
	Concurrency          int           // bounded fan-out across items
}

// Analyzer recomputes item statistics and scale reliability. One failed
// item never aborts the run; errors are logged with the item id and the
// batch continues.
type Analyzer struct {
	db     *storage.DB
	cfg    Config
	logger *slog.Logger

	now func() time.Time
}

func NewAnalyzer(db *storage.DB, cfg Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		db:     db,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one full analysis pass: items first, then competency and
// trait reliability.
func (a *Analyzer) Run(ctx context.Context) error {
	started := a.now()

	itemIDs, err := a.db.ListAnalysableItemIDs(ctx, a.cfg.MinItemResponses)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for _, itemID := range itemIDs {
		g.Go(func() error {
			if err := a.analyzeItem(gctx, itemID); err != nil {
				a.logger.Error("psychometrics: item analysis failed", "error", err,
					slog.String("item_id", itemID.String()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	a.analyzeReliability(ctx)

	a.logger.Info("psychometrics: run complete",
		slog.Int("items", len(itemIDs)),
		slog.Int64("duration_ms", a.now().Sub(started).Milliseconds()))
	return nil
}

// analyzeItem recomputes one item's statistics and applies flag and
// status transitions.
func (a *Analyzer) analyzeItem(ctx context.Context, itemID uuid.UUID) error {
	pairs, err := a.db.ListItemResponsePairs(ctx, itemID)
	if err != nil {
		return err
	}
	if int64(len(pairs)) < a.cfg.MinItemResponses {
		return nil
	}

	stats, err := a.db.GetItemStatistics(ctx, itemID)
	if err == nil && stats.ValidityStatus == model.StatusRetired {
		// Retirement is irreversible; nothing to recompute.
		return nil
	}
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		stats = model.ItemStatistics{ItemID: itemID, ValidityStatus: model.StatusProbation}
	}

	var sum float64
	for _, p := range pairs {
		sum += p.ItemScore
	}
	p := sum / float64(len(pairs))

	stats.PreviousDiscrimination = stats.Discrimination
	stats.PValue = &p
	stats.ResponseCount = int64(len(pairs))

	if disc, ok := pointBiserial(pairs); ok {
		stats.Discrimination = &disc
	} else {
		stats.Discrimination = nil
	}

	if irtA, irtB, ok := fit2PL(pairs); ok {
		stats.IRTA = &irtA
		stats.IRTB = &irtB
	} else {
		stats.IRTA, stats.IRTB, stats.IRTC = nil, nil, nil
	}

	previousFlag := stats.DiscriminationFlag
	stats.DifficultyFlag = difficultyFlag(p)
	stats.DiscriminationFlag = discriminationFlag(stats.Discrimination)

	a.transition(&stats, previousFlag)

	return a.db.UpsertItemStatistics(ctx, stats)
}

func difficultyFlag(p float64) model.DifficultyFlag {
	switch {
	case p > 0.90:
		return model.DifficultyFlagTooEasy
	case p < 0.20:
		return model.DifficultyFlagTooHard
	default:
		return model.DifficultyFlagNone
	}
}

func discriminationFlag(disc *float64) model.DiscriminationFlag {
	if disc == nil {
		return model.DiscriminationFlagNone
	}
	switch {
	case *disc < 0:
		return model.DiscriminationFlagNegative
	case *disc < 0.10:
		return model.DiscriminationFlagCritical
	case *disc < 0.25:
		return model.DiscriminationFlagWarning
	default:
		return model.DiscriminationFlagNone
	}
}

func severe(f model.DiscriminationFlag) bool {
	return f == model.DiscriminationFlagCritical || f == model.DiscriminationFlagNegative
}

// transition applies the validity state machine. Retirement is terminal;
// flagging needs the severe flag to persist across two consecutive runs.
func (a *Analyzer) transition(stats *model.ItemStatistics, previousFlag model.DiscriminationFlag) {
	now := a.now()

	switch stats.ValidityStatus {
	case model.StatusProbation:
		if stats.ResponseCount >= a.cfg.MinItemResponses &&
			stats.Discrimination != nil && *stats.Discrimination >= 0.10 {
			a.move(stats, model.StatusActive, "discrimination cleared probation threshold", now)
		}

	case model.StatusActive:
		if severe(stats.DiscriminationFlag) && severe(previousFlag) {
			a.move(stats, model.StatusFlaggedForReview,
				"severe discrimination flag persisted across consecutive runs", now)
			stats.FlaggedSince = &now
		}

	case model.StatusFlaggedForReview:
		if stats.DiscriminationFlag == model.DiscriminationFlagNone {
			a.move(stats, model.StatusActive, "discrimination recovered", now)
			stats.FlaggedSince = nil
			return
		}
		if stats.FlaggedSince != nil && now.Sub(*stats.FlaggedSince) >= a.cfg.ReviewDwell {
			a.move(stats, model.StatusRetired, "no improvement within review dwell", now)
		}
	}
}

func (a *Analyzer) move(stats *model.ItemStatistics, to model.ValidityStatus, reason string, at time.Time) {
	stats.StatusHistory = append(stats.StatusHistory, model.StatusChange{
		From:   stats.ValidityStatus,
		To:     to,
		At:     at,
		Reason: reason,
	})
	stats.ValidityStatus = to
	a.logger.Info("psychometrics: item status transition",
		slog.String("item_id", stats.ItemID.String()),
		slog.String("from", string(stats.StatusHistory[len(stats.StatusHistory)-1].From)),
		slog.String("to", string(to)),
		slog.String("reason", reason))
}

// analyzeReliability recomputes Cronbach alpha per competency and trait.
// Failures are logged per scale; the pass always completes.
func (a *Analyzer) analyzeReliability(ctx context.Context) {
	competencies, err := a.db.ListActiveCompetencies(ctx)
	if err != nil {
		a.logger.Error("psychometrics: list competencies", "error", err)
		return
	}

	for _, comp := range competencies {
		if err := a.analyzeCompetency(ctx, comp.ID); err != nil {
			a.logger.Error("psychometrics: competency reliability failed", "error", err,
				slog.String("competency_id", comp.ID.String()))
		}
	}

	for _, trait := range model.AllTraits {
		if err := a.analyzeTrait(ctx, trait); err != nil {
			a.logger.Error("psychometrics: trait reliability failed", "error", err,
				slog.String("trait", string(trait)))
		}
	}
}

func (a *Analyzer) analyzeCompetency(ctx context.Context, competencyID uuid.UUID) error {
	cells, err := a.db.ListCompetencyResponseMatrix(ctx, competencyID)
	if err != nil {
		return err
	}

	res := cronbachAlpha(cells)
	record := model.CompetencyReliability{
		CompetencyID: competencyID,
		SampleSize:   res.SampleSize,
		ItemCount:    res.ItemCount,
		Status:       model.ReliabilityInsufficientData,
	}
	if res.OK {
		alpha := res.Alpha
		record.Alpha = &alpha
		record.AlphaIfDeleted = res.AlphaIfDeleted
		record.Status = model.BandReliability(alpha, res.SampleSize, a.cfg.MinReliabilitySample)
	}
	return a.db.UpsertCompetencyReliability(ctx, record)
}

func (a *Analyzer) analyzeTrait(ctx context.Context, trait model.BigFiveTrait) error {
	cells, err := a.db.ListTraitResponseMatrix(ctx, trait)
	if err != nil {
		return err
	}

	res := cronbachAlpha(cells)
	record := model.BigFiveReliability{
		Trait:      trait,
		SampleSize: res.SampleSize,
		ItemCount:  res.ItemCount,
		Status:     model.ReliabilityInsufficientData,
	}
	if res.OK {
		alpha := res.Alpha
		record.Alpha = &alpha
		record.Status = model.BandReliability(alpha, res.SampleSize, a.cfg.MinReliabilitySample)
	}
	return a.db.UpsertBigFiveReliability(ctx, record)
}
