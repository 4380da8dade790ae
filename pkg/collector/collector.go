package collector

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/normalizer"
	"github.com/travigo/vehiclehistory/pkg/store"
	"github.com/travigo/vehiclehistory/pkg/upstream"
	"github.com/travigo/vehiclehistory/pkg/util"
)

const dryRunSampleSize = 5

// Collector runs the poll cycle and the retention cycle against one store.
// The two cycles share nothing but the store.
type Collector struct {
	Upstream   upstream.Client
	Normalizer *normalizer.Normalizer
	Store      store.Store
	Events     EventRecorder

	RouteTypes        []ctdf.RouteType
	PollInterval      time.Duration
	RetentionWindow   time.Duration
	RetentionInterval time.Duration
	WriteAttempts     int
	WriteBackoff      time.Duration

	// DryRun fetches and normalizes but never writes or prunes
	DryRun bool

	Now func() time.Time
}

type CycleResult struct {
	Fetched       int
	Rejected      int
	RejectReasons map[string]int
	Duplicates    int
	Written       int
	Attempts      int
	Dropped       bool
	FetchError    error
	WriteError    error
	Duration      time.Duration
}

// Run starts both cycles, each running once straight away, and blocks until ctx is cancelled
func (c *Collector) Run(ctx context.Context) {
	var wg conc.WaitGroup

	wg.Go(func() {
		c.runLoop(ctx, "poll", c.PollInterval, func() {
			result := c.PollOnce(ctx)
			if result.Duration > c.PollInterval {
				log.Warn().
					Dur("duration", result.Duration).
					Dur("interval", c.PollInterval).
					Msg("Poll cycle took longer than the poll interval")
			}
		})
	})

	if !c.DryRun {
		wg.Go(func() {
			c.runLoop(ctx, "retention", c.RetentionInterval, func() {
				c.PruneOnce(ctx)
			})
		})
	}

	wg.Wait()
}

func (c *Collector) runLoop(ctx context.Context, name string, interval time.Duration, cycle func()) {
	log.Info().Str("loop", name).Dur("interval", interval).Msg("Starting loop")

	cycle()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cycle()
		case <-ctx.Done():
			log.Info().Str("loop", name).Msg("Loop stopped")
			return
		}
	}
}

// PollOnce runs one fetch, normalize, dedup and write cycle. Failures are logged and reported in
// the result, they never stop the loop.
func (c *Collector) PollOnce(ctx context.Context) CycleResult {
	start := c.now()
	result := CycleResult{}

	raws, err := c.Upstream.Fetch(ctx, c.RouteTypes)
	if err != nil {
		result.FetchError = err
		log.Warn().Err(err).Int("fetched", len(raws)).Msg("Upstream fetch partially failed")
	}
	result.Fetched = len(raws)

	records, rejects := c.Normalizer.NormalizeAll(raws)
	result.RejectReasons = rejects
	for _, count := range rejects {
		result.Rejected += count
	}

	result.Duplicates = deduplicate(&records)

	switch {
	case c.DryRun:
		c.logDryRun(records)
	case len(records) > 0:
		result.Attempts, result.WriteError = c.writeBatch(ctx, records)
		if result.WriteError != nil {
			result.Dropped = true
			log.Error().
				Err(result.WriteError).
				Int("attempt", result.Attempts).
				Int("records", len(records)).
				Msg("Dropping batch after write retries exhausted")
		} else {
			result.Written = len(records)
		}
	}

	result.Duration = c.now().Sub(start)

	log.Info().
		Str("routetypes", routeTypeNames(c.RouteTypes)).
		Int("fetched", result.Fetched).
		Int("rejected", result.Rejected).
		Int("duplicates", result.Duplicates).
		Int("written", result.Written).
		Dur("duration", result.Duration).
		Msg("Poll cycle complete")

	if c.Events != nil {
		c.Events.RecordCycle(newCycleEvent(start, c.RouteTypes, result))
	}

	return result
}

// deduplicate drops repeats of the same observation within the batch and returns how many went
func deduplicate(records *[]ctdf.PositionRecord) int {
	before := len(*records)
	seen := map[ctdf.PositionKey]bool{}

	util.InPlaceFilter(records, func(record ctdf.PositionRecord) bool {
		key := record.Key()
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	})

	return before - len(*records)
}

func (c *Collector) writeBatch(ctx context.Context, records []ctdf.PositionRecord) (int, error) {
	attempts := 0

	retryBackoff := backoff.NewExponentialBackOff()
	retryBackoff.InitialInterval = c.WriteBackoff
	retryBackoff.MaxElapsedTime = 0

	maxRetries := c.WriteAttempts - 1
	if maxRetries < 0 {
		maxRetries = 0
	}

	err := backoff.Retry(func() error {
		attempts++

		err := c.Store.InsertBatch(ctx, records)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempts).Msg("Failed to write batch")
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(retryBackoff, uint64(maxRetries)), ctx))

	return attempts, err
}

// PruneOnce deletes everything older than the retention window then logs the store statistics
func (c *Collector) PruneOnce(ctx context.Context) (int64, error) {
	if c.DryRun {
		log.Info().Msg("Dry run, skipping retention cycle")
		return 0, nil
	}

	cutoff := c.now().Add(-c.RetentionWindow)

	deleted, err := c.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Time("cutoff", cutoff).Msg("Failed to prune old records")
		return 0, err
	}

	log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Retention cycle complete")

	stats, err := c.Store.Stats(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get store statistics")
		return deleted, nil
	}

	event := log.Info().
		Int64("records", stats.TotalRecords).
		Int64("vehicles", stats.UniqueVehicles)
	if stats.OldestRecord != nil {
		event = event.Time("oldest", *stats.OldestRecord)
	}
	if stats.NewestRecord != nil {
		event = event.Time("newest", *stats.NewestRecord)
	}
	event.Msg("Store statistics")

	return deleted, nil
}

func (c *Collector) logDryRun(records []ctdf.PositionRecord) {
	var sample []string
	for _, record := range records {
		if len(sample) == dryRunSampleSize {
			break
		}
		sample = append(sample, record.VehicleID)
	}

	log.Info().
		Int("records", len(records)).
		Strs("sample", sample).
		Msg("Dry run, would have written records")
}

func (c *Collector) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
