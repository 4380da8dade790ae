package database

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const VehicleLocationsCollection = "vehicle_locations"

// CreateVehicleLocationIndexes sets up the unique observation key plus the indexes for the time
// range scans. The unique index is what makes repeated inserts no-ops so its failure is returned.
func CreateVehicleLocationIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "vehicleid", Value: 1}, {Key: "timestamp", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	scanIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "timestamp", Value: -1}, {Key: "vehicleid", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "routeid", Value: 1}, {Key: "timestamp", Value: 1}},
		},
	}

	opts := options.CreateIndexes()
	_, err = collection.Indexes().CreateMany(ctx, scanIndexes, opts)
	if err != nil {
		log.Error().Err(err).Msg("Creating Index")
	}

	return nil
}
