package screening

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
)

// Store is the part of the snapshot store screening needs
type Store interface {
	LatestDataDate(ctx context.Context) (time.Time, error)
	LoadByDate(ctx context.Context, dataDate time.Time) ([]contracts.Snapshot, error)
	ApplyScreening(ctx context.Context, dataDate time.Time, profilesRun []string, rows []contracts.Snapshot) (int, error)
}

// Summary reports one screening run
type Summary struct {
	DataDate   time.Time
	Profiles   []string
	Loaded     int
	PerProfile map[string]int
	Results    map[string][]contracts.ProfileResult
	Merged     MergeResult
	Updated    int
}

// Service loads a dated dataset, runs profiles, merges and writes back
type Service struct {
	store    Store
	runner   *Runner
	observer contracts.Observer
}

// NewService creates a screening service. A nil observer discards progress.
func NewService(store Store, runner *Runner, observer contracts.Observer) *Service {
	if observer == nil {
		observer = contracts.NopObserver{}
	}
	return &Service{store: store, runner: runner, observer: observer}
}

// Run screens dataDate (zero = latest stored date) with the selected profiles ("all" or names).
// Profile names and the data date are validated before any work starts.
func (s *Service) Run(ctx context.Context, dataDate time.Time, selection []string) (*Summary, error) {
	profiles, err := s.runner.Book().Resolve(selection)
	if err != nil {
		return nil, err
	}

	if dataDate.IsZero() {
		dataDate, err = s.store.LatestDataDate(ctx)
		if errors.Is(err, contracts.ErrNoData) {
			return nil, &contracts.ConfigError{Field: "date", Message: "no data in store"}
		}
		if err != nil {
			return nil, fmt.Errorf("latest data date: %w", err)
		}
	}

	rows, err := s.store.LoadByDate(ctx, dataDate)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dataDate.Format("2006-01-02"), err)
	}
	if len(rows) == 0 {
		return nil, &contracts.ConfigError{Field: "date", Message: fmt.Sprintf("no data for %s", dataDate.Format("2006-01-02"))}
	}

	sum := &Summary{
		DataDate:   dataDate,
		Profiles:   profiles,
		Loaded:     len(rows),
		PerProfile: make(map[string]int, len(profiles)),
		Results:    make(map[string][]contracts.ProfileResult, len(profiles)),
	}

	for _, profile := range profiles {
		s.observer.StageStarted(profile, len(rows))
		results, err := s.runner.RunProfile(ctx, rows, profile)
		if err != nil {
			return nil, err
		}
		sum.Results[profile] = results
		sum.PerProfile[profile] = len(results)
		s.observer.StageFinished(profile, len(results), len(rows)-len(results))
	}

	sum.Merged = Merge(profiles, sum.Results)
	for _, d := range sum.Merged.Divergent {
		s.observer.Warn("Total score differs across profiles", map[string]interface{}{
			"ticker": d.Ticker,
			"kept":   d.KeptProfile,
		})
	}

	// 병합 결과가 비어도 반영 (재실행된 프로파일의 기존 태그 제거)
	updated, err := s.store.ApplyScreening(ctx, dataDate, profiles, sum.Merged.Rows)
	if err != nil {
		return nil, err
	}
	sum.Updated = updated

	return sum, nil
}
