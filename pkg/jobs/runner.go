package jobs

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"base-scraper/pkg/config"
	"base-scraper/pkg/models"
	"base-scraper/pkg/store"
	"base-scraper/pkg/utils"
)

// URLLister discovers detail page URLs for a category/level.
// Satisfied by scrape.Paginator.
type URLLister interface {
	ListDetailURLs(ctx context.Context, category models.HallCategory, level int) ([]string, error)
}

// RecordExtractor extracts one detail page into a record.
// Satisfied by scrape.Extractor.
type RecordExtractor interface {
	Extract(ctx context.Context, detailURL string) (*models.ScrapedRecord, error)
}

// Runner drives scrape jobs through their state machine. Each job's
// targets are processed strictly sequentially so the inter-request delay
// actually throttles, but multiple jobs may run concurrently, each with
// its own sequential stream. The shared fetch gate inside the Fetcher
// bounds the combined request rate.
type Runner struct {
	cfg       *config.AppConfig
	manager   *Manager
	lister    URLLister
	extractor RecordExtractor
	baseStore store.BaseStore
	log       *logrus.Entry
}

// NewRunner creates a Runner
func NewRunner(cfg *config.AppConfig, manager *Manager, lister URLLister, extractor RecordExtractor, baseStore store.BaseStore, log *logrus.Entry) *Runner {
	return &Runner{
		cfg:       cfg,
		manager:   manager,
		lister:    lister,
		extractor: extractor,
		baseStore: baseStore,
		log:       log,
	}
}

// Start registers a job for the scope and drives it asynchronously,
// returning the job snapshot immediately. A request for a scope that is
// already in flight attaches to the existing job (created=false).
func (r *Runner) Start(ctx context.Context, scope Scope) (Job, bool) {
	job, created := r.manager.Create(scope)
	if !created {
		r.log.WithFields(logrus.Fields{"job_id": job.ID, "scope": scope.Key()}).Info("Attaching to in-flight job for scope")
		return job, false
	}
	go r.run(ctx, job.ID, scope)
	return job, true
}

// Run drives a job synchronously (CLI path) and returns the final snapshot.
func (r *Runner) Run(ctx context.Context, scope Scope) Job {
	job, created := r.manager.Create(scope)
	if created {
		r.run(ctx, job.ID, scope)
	}
	final, _ := r.manager.Get(job.ID)
	return final
}

func (r *Runner) run(ctx context.Context, jobID string, scope Scope) {
	jobLog := r.log.WithFields(logrus.Fields{"job_id": jobID, "scope": scope.Key()})

	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	// Discovery. Ad-hoc jobs skip it: the target list is the single URL.
	var targets []string
	if scope.IsAdHoc() {
		targets = []string{scope.AdHocURL}
	} else {
		r.manager.SetFetchingList(jobID)
		discovered, err := r.lister.ListDetailURLs(ctx, scope.Category, scope.Level)
		if err != nil {
			// Nothing to scrape; a discovery failure is fatal to the job
			jobLog.WithField("error_category", utils.CategorizeError(err)).Errorf("Discovery failed: %v", err)
			r.manager.Fail(jobID, err.Error())
			return
		}
		targets = discovered
	}

	r.manager.BeginScraping(jobID, len(targets))
	jobLog.Infof("Scraping %d targets", len(targets))

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			jobLog.Warnf("Job aborted: %v", err)
			r.manager.Fail(jobID, err.Error())
			return
		}

		rec, err := r.extractor.Extract(ctx, target)
		switch {
		case err != nil:
			jobLog.WithFields(logrus.Fields{
				"url": target, "error_category": utils.CategorizeError(err),
			}).Warnf("Target extraction failed: %v", err)
			r.manager.RecordError(jobID, target, err.Error())
		case !rec.HasDeepLink():
			r.manager.RecordSkip(jobID)
		default:
			r.manager.RecordSuccess(jobID, *rec)
		}

		if i < len(targets)-1 {
			if err := r.sleepBetweenTargets(ctx); err != nil {
				jobLog.Warnf("Job aborted during inter-target delay: %v", err)
				r.manager.Fail(jobID, err.Error())
				return
			}
		}
	}

	// Persist before finishing. A persistence failure does not invalidate
	// the scrape itself; it is surfaced distinctly on the job.
	persistError := ""
	collected := r.manager.CollectedRecords(jobID)
	if len(collected) > 0 {
		if _, err := r.baseStore.MergeAndSave(collected); err != nil {
			jobLog.Errorf("Scrape succeeded but persisting %d records failed: %v", len(collected), err)
			persistError = err.Error()
		}
	}

	r.manager.Complete(jobID, persistError)
	final, _ := r.manager.Get(jobID)
	jobLog.WithFields(logrus.Fields{
		"collected": len(final.CollectedRecords),
		"errors":    len(final.PerURLErrors),
		"skipped":   final.SkippedNoLink,
		"duration":  final.CompletedAt.Sub(final.StartedAt),
	}).Info("Job completed")
}

// sleepBetweenTargets applies the jittered inter-target delay, honoring
// context cancellation
func (r *Runner) sleepBetweenTargets(ctx context.Context) error {
	delay := r.cfg.DetailDelay
	if delay <= 0 {
		return nil
	}
	if jitterRange := int64(delay) / 5; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange)) - (delay / 10)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
