package commands

import (
	"fmt"
	"time"

	"github.com/wonny/ddalkkak/backend/internal/collector"
	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/internal/external/market"
	"github.com/wonny/ddalkkak/backend/internal/scheduler"
	"github.com/wonny/ddalkkak/backend/internal/scheduler/jobs"
	"github.com/wonny/ddalkkak/backend/internal/screening"
)

// newPipeline wires the market clients into a collection pipeline.
// observer nil = structured log progress.
func (a *app) newPipeline(cfg collector.Config, observer contracts.Observer) *collector.Pipeline {
	httpClient := market.NewHTTPClient(a.cfg, a.log, a.rdb)
	universe := market.NewUniverseScraper(httpClient, a.log, a.cfg.Market.UniverseURL)
	client := market.NewClient(httpClient, a.log, a.cfg.Market)

	if observer == nil {
		observer = collector.NewLogObserver(a.log, 250)
	}
	return collector.NewPipeline(universe, client, client, a.store, observer, cfg)
}

// collectorConfig maps the environment settings to the pipeline config
func (a *app) collectorConfig() collector.Config {
	return collector.Config{
		Stage1Workers: a.cfg.Collector.Stage1Workers,
		Stage2Workers: a.cfg.Collector.Stage2Workers,
		TopK:          a.cfg.Collector.TopK,
		TaskTimeout:   a.cfg.Collector.TaskTimeout,
	}
}

// newCollectionJob creates the collection job around pipeline
func (a *app) newCollectionJob(pipeline *collector.Pipeline) *jobs.DataCollectionJob {
	job := jobs.NewDataCollectionJob(pipeline, a.cfg, a.log)
	if a.cache != nil {
		job.WithCache(a.cache)
	}
	return job
}

// newScreeningJob loads the profile book and creates the screening job
func (a *app) newScreeningJob() (*jobs.ScreeningJob, *screening.Book, error) {
	book, err := screening.LoadBook(a.cfg.Screening.ProfilesFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load profiles: %w", err)
	}

	job := jobs.NewScreeningJob(a.newScreeningService(book), a.cfg, a.log)
	if a.cache != nil {
		job.WithCache(a.cache)
	}
	return job, book, nil
}

// newScreeningService runs book against the store, reporting per-profile progress to the log
func (a *app) newScreeningService(book *screening.Book) *screening.Service {
	observer := collector.NewLogObserver(a.log, 0).Named("screening")
	return screening.NewService(a.store, screening.NewDefaultRunner(book), observer)
}

// newScheduler registers collection, screening and retention jobs
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log).WithRetry(2, time.Minute)

	screenJob, _, err := a.newScreeningJob()
	if err != nil {
		return nil, err
	}

	for _, job := range []scheduler.Job{
		a.newCollectionJob(a.newPipeline(a.collectorConfig(), nil)),
		screenJob,
		jobs.NewRetentionCleanupJob(a.store, a.cfg, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, fmt.Errorf("add job %s: %w", job.Name(), err)
		}
	}
	return sched, nil
}
