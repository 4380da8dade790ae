package backend

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/config"
	"github.com/travigo/vehiclehistory/pkg/database"
	"github.com/travigo/vehiclehistory/pkg/store"
	"github.com/travigo/vehiclehistory/pkg/store/mongostore"
	"github.com/travigo/vehiclehistory/pkg/store/pgstore"
)

// Open connects to the configured store and bounds every call by the store timeout
func Open(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var s store.Store

	switch cfg.Store {
	case "mongodb":
		instance, err := database.ConnectMongoDB(ctx, cfg.MongoConnection, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("connecting to mongodb: %w", err)
		}

		mongoStore, err := mongostore.New(ctx, instance.GetCollection(database.VehicleLocationsCollection))
		if err != nil {
			instance.Client.Disconnect(context.Background())
			return nil, fmt.Errorf("creating mongodb indexes: %w", err)
		}
		s = mongoStore
	case "postgres":
		db, err := database.ConnectPostgres(cfg.PostgresConnection)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}

		pgStore, err := pgstore.New(db)
		if err != nil {
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		s = pgStore
	case "memory":
		log.Warn().Msg("Using in-memory store, records will not survive a restart")
		s = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	log.Info().Str("store", cfg.Store).Msg("Connected to store")

	return store.WithTimeout(s, cfg.StoreTimeout), nil
}
