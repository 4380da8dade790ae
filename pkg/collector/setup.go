package collector

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/config"
	"github.com/travigo/vehiclehistory/pkg/elastic_client"
	"github.com/travigo/vehiclehistory/pkg/normalizer"
	"github.com/travigo/vehiclehistory/pkg/redis_client"
	"github.com/travigo/vehiclehistory/pkg/store"
	"github.com/travigo/vehiclehistory/pkg/store/backend"
	"github.com/travigo/vehiclehistory/pkg/upstream"
	"github.com/travigo/vehiclehistory/pkg/upstream/gtfsrt"
	"github.com/travigo/vehiclehistory/pkg/upstream/ptv"
)

// closers collects the connections opened while building a collector so they can be shut in reverse
type closers []func()

func (c closers) Close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// New builds a collector from the configuration. The returned cleanup closes every connection New
// opened and must be called once the collector has stopped, even when New returns an error.
func New(ctx context.Context, cfg *config.Config) (*Collector, func(), error) {
	var cleanup closers

	upstreamClient, upstreamCleanup, err := NewUpstream(ctx, cfg)
	if err != nil {
		return nil, cleanup.Close, err
	}
	cleanup = append(cleanup, upstreamCleanup)

	n, err := NewNormalizer(cfg)
	if err != nil {
		return nil, cleanup.Close, err
	}

	collector := &Collector{
		Upstream:          upstreamClient,
		Normalizer:        n,
		RouteTypes:        cfg.RouteTypes,
		PollInterval:      cfg.PollInterval,
		RetentionWindow:   cfg.RetentionWindow,
		RetentionInterval: cfg.RetentionInterval,
		WriteAttempts:     cfg.WriteAttempts,
		WriteBackoff:      cfg.WriteBackoff,
		DryRun:            !cfg.EnableDBWrite,
	}

	if collector.DryRun {
		log.Warn().Msg("Database writes disabled, running in dry run mode")
	} else {
		collector.Store, err = backend.Open(ctx, cfg)
		if err != nil {
			return nil, cleanup.Close, err
		}
		cleanup = append(cleanup, func() {
			collector.Store.Close(context.Background())
		})
	}

	if cfg.ElasticsearchAddress != "" {
		elasticClient, err := elastic_client.Connect(cfg.ElasticsearchAddress, cfg.ElasticsearchUsername, cfg.ElasticsearchPassword)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Elasticsearch, cycle events disabled")
		} else {
			collector.Events = &ElasticEventRecorder{Indexer: elasticClient}
			cleanup = append(cleanup, func() {
				elasticClient.Close(context.Background())
			})
		}
	} else {
		log.Info().Msg("Skipping Elasticsearch setup")
	}

	return collector, cleanup.Close, nil
}

// NewRetention builds a collector that only runs retention cycles against an already open store
func NewRetention(s store.Store, cfg *config.Config) *Collector {
	return &Collector{
		Store:           s,
		RetentionWindow: cfg.RetentionWindow,
		DryRun:          !cfg.EnableDBWrite,
	}
}

func NewUpstream(ctx context.Context, cfg *config.Config) (upstream.Client, func(), error) {
	if err := cfg.ValidateUpstream(); err != nil {
		return nil, func() {}, err
	}

	switch cfg.Upstream {
	case "ptv":
		client := ptv.NewClient(cfg.PTVBaseURL, cfg.PTVUserID, cfg.PTVAPIKey, cfg.ParallelWorkers, cfg.RequestTimeout)

		if cfg.RedisAddress == "" {
			return client, func() {}, nil
		}

		redisClient, err := redis_client.Connect(ctx, cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDatabase)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to redis, route lists will not be cached")
			return client, func() {}, nil
		}
		client.RouteCache = ptv.NewRedisRouteCache(redisClient)

		return client, func() { closeQuietly(redisClient) }, nil
	case "gtfsrt":
		return gtfsrt.NewClient(cfg.GTFSRTFeeds, cfg.RequestTimeout), func() {}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown upstream %q", cfg.Upstream)
	}
}

func NewNormalizer(cfg *config.Config) (*normalizer.Normalizer, error) {
	n := &normalizer.Normalizer{Bounds: cfg.Bounds}

	if cfg.RouteZonesFile != "" {
		corrections, err := normalizer.LoadRouteCorrections(cfg.RouteZonesFile)
		if err != nil {
			return nil, fmt.Errorf("loading route zones: %w", err)
		}
		n.Corrections = corrections

		log.Info().Int("zones", len(corrections.Zones)).Msg("Loaded route correction zones")
	}

	return n, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close connection")
	}
}
