package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/storage"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reconcileBatchSize = 500

// ReconcileReport summarizes one sweep.
type ReconcileReport struct {
	Scanned          int `json:"scanned"`
	Orphans          int `json:"orphans"`
	Removed          int `json:"removed"`
	Failed           int `json:"failed"`
	MissingOriginals int `json:"missing_originals"`
}

// Reconciler brings the storage tree and the catalog back into agreement after
// crashes or cleanup failures. Files younger than Grace are never touched since
// an upload may still be between storing and cataloging them.
type Reconciler struct {
	Repo    MediaRepository
	Layout  *storage.Layout
	Cleaner *storage.Cleaner
	Grace   time.Duration
	Log     *zap.Logger

	now func() time.Time
}

func NewReconciler(repo MediaRepository, layout *storage.Layout, cleaner *storage.Cleaner, cfg *config.Config, log *zap.Logger) *Reconciler {
	return &Reconciler{
		Repo:    repo,
		Layout:  layout,
		Cleaner: cleaner,
		Grace:   cfg.ReconcileGrace,
		Log:     log.Named("reconcile"),
		now:     time.Now,
	}
}

func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{}
	cutoff := r.now().Add(-r.Grace)

	byID := make(map[string][]string)
	var ids []string
	err := r.Layout.Walk(func(e storage.StoredEntry) error {
		report.Scanned++
		id, ok := storage.IDFromFilename(e.RelPath)
		if !ok {
			r.Log.Warn("unrecognized file in storage tree", zap.String("path", e.RelPath))
			return nil
		}
		if e.Info.ModTime().After(cutoff) {
			return nil
		}
		if _, seen := byID[id]; !seen {
			ids = append(ids, id)
		}
		byID[id] = append(byID[id], e.RelPath)
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("walk storage: %w", err)
	}

	for start := 0; start < len(ids); start += reconcileBatchSize {
		end := min(start+reconcileBatchSize, len(ids))
		found, err := r.Repo.FindByIDs(ctx, ids[start:end])
		if err != nil {
			return report, fmt.Errorf("lookup catalog: %w", err)
		}
		for _, id := range ids[start:end] {
			orphans := unreferenced(found[id], byID[id])
			if len(orphans) == 0 {
				continue
			}
			report.Orphans += len(orphans)
			failed := r.Cleaner.Remove(id, orphans...)
			report.Failed += failed
			report.Removed += len(orphans) - failed
		}
	}

	missing, err := r.checkOriginals(ctx)
	report.MissingOriginals = missing
	if err != nil {
		return report, err
	}

	r.Log.Info("reconciliation finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("orphans", report.Orphans),
		zap.Int("removed", report.Removed),
		zap.Int("failed", report.Failed),
		zap.Int("missing_originals", report.MissingOriginals),
	)
	return report, nil
}

// unreferenced returns the paths not claimed by the asset. A nil asset claims nothing.
func unreferenced(asset *MediaAsset, paths []string) []string {
	if asset == nil {
		return paths
	}
	claimed := make(map[string]bool)
	for _, p := range asset.Paths() {
		claimed[p] = true
	}
	var out []string
	for _, p := range paths {
		if !claimed[p] {
			out = append(out, p)
		}
	}
	return out
}

// checkOriginals logs every catalog row whose original is gone. Rows are left in
// place for an operator to decide.
func (r *Reconciler) checkOriginals(ctx context.Context) (int, error) {
	missing := 0
	filter := ListFilter{IncludePrivate: true, Limit: reconcileBatchSize}
	for {
		batch, err := r.Repo.List(ctx, filter)
		if err != nil {
			return missing, fmt.Errorf("list catalog: %w", err)
		}
		for _, a := range batch {
			abs, err := r.Layout.Abs(a.StoragePath)
			if err == nil {
				_, err = os.Stat(abs)
			}
			if errors.Is(err, fs.ErrNotExist) || (err != nil && abs == "") {
				missing++
				r.Log.Warn("catalog row without original",
					zap.String("asset_id", a.ID),
					zap.String("path", a.StoragePath),
				)
			}
		}
		if len(batch) < reconcileBatchSize {
			return missing, nil
		}
		filter.Offset += reconcileBatchSize
	}
}

// ReconcileScheduler runs the Reconciler on a cron schedule.
type ReconcileScheduler struct {
	reconciler *Reconciler
	schedule   string
	cron       *cron.Cron
	log        *zap.Logger
}

func NewReconcileScheduler(reconciler *Reconciler, cfg *config.Config, log *zap.Logger) *ReconcileScheduler {
	return &ReconcileScheduler{
		reconciler: reconciler,
		schedule:   cfg.ReconcileSchedule,
		log:        log.Named("reconcile"),
	}
}

// Start registers the sweep. An empty schedule disables it.
func (s *ReconcileScheduler) Start() error {
	if s.schedule == "" {
		s.log.Info("reconciliation schedule disabled")
		return nil
	}

	cronLog := cron.PrintfLogger(zap.NewStdLog(s.log))
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := c.AddFunc(s.schedule, func() {
		if _, err := s.reconciler.Run(context.Background()); err != nil {
			s.log.Error("reconciliation failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", s.schedule, err)
	}
	s.cron = c
	s.cron.Start()
	s.log.Info("reconciliation scheduled", zap.String("schedule", s.schedule))
	return nil
}

func (s *ReconcileScheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}
