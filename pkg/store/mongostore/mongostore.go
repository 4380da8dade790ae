package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/database"
	"github.com/travigo/vehiclehistory/pkg/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const duplicateKeyCode = 11000

type Store struct {
	collection *mongo.Collection
}

func New(ctx context.Context, collection *mongo.Collection) (*Store, error) {
	if err := database.CreateVehicleLocationIndexes(ctx, collection); err != nil {
		return nil, err
	}

	return &Store{collection: collection}, nil
}

func (s *Store) InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error {
	if len(records) == 0 {
		return nil
	}

	documents := make([]interface{}, 0, len(records))
	for _, record := range records {
		documents = append(documents, record)
	}

	_, err := s.collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(false))
	if err == nil || onlyDuplicateKeys(err) {
		return nil
	}

	return err
}

// An unordered insert carries on past duplicates, so a write exception made up only of
// duplicate key errors means every new record was stored
func onlyDuplicateKeys(err error) bool {
	var bulkWriteException mongo.BulkWriteException
	if !errors.As(err, &bulkWriteException) {
		return false
	}
	if bulkWriteException.WriteConcernError != nil || len(bulkWriteException.WriteErrors) == 0 {
		return false
	}

	for _, writeError := range bulkWriteException.WriteErrors {
		if writeError.Code != duplicateKeyCode {
			return false
		}
	}

	return true
}

func (s *Store) QueryRange(ctx context.Context, query store.Query) ([]ctdf.PositionRecord, error) {
	filter := bson.M{"timestamp": bson.M{"$gte": query.Since}}
	if query.VehicleID != "" {
		filter["vehicleid"] = query.VehicleID
	}
	if query.RouteID != "" {
		filter["routeid"] = query.RouteID
	}

	direction := 1
	if query.Order == store.OrderDescending {
		direction = -1
	}

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: direction}, {Key: "vehicleid", Value: 1}})
	if query.Limit > 0 {
		opts = opts.SetLimit(int64(query.Limit))
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	records := []ctdf.PositionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}

	return records, nil
}

func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.collection.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, err
	}

	return result.DeletedCount, nil
}

func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	var stats store.Stats
	var err error

	stats.TotalRecords, err = s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return stats, err
	}

	vehicles, err := s.collection.Distinct(ctx, "vehicleid", bson.M{})
	if err != nil {
		return stats, err
	}
	stats.UniqueVehicles = int64(len(vehicles))

	if stats.OldestRecord, err = s.boundaryTimestamp(ctx, 1); err != nil {
		return stats, err
	}
	if stats.NewestRecord, err = s.boundaryTimestamp(ctx, -1); err != nil {
		return stats, err
	}

	return stats, nil
}

type routeGroup struct {
	ID struct {
		RouteID   string         `bson:"routeid"`
		RouteType ctdf.RouteType `bson:"routetype"`
	} `bson:"_id"`
}

// DistinctRoutes groups on the server so only one document per route comes back
func (s *Store) DistinctRoutes(ctx context.Context, since time.Time) ([]ctdf.Route, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": since},
			"routeid":   bson.M{"$nin": bson.A{nil, ""}},
			"routetype": bson.M{"$ne": nil},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"routeid": "$routeid", "routetype": "$routetype"},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}

	var groups []routeGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}

	routes := make([]ctdf.Route, 0, len(groups))
	for _, group := range groups {
		routes = append(routes, ctdf.Route{RouteID: group.ID.RouteID, RouteType: group.ID.RouteType})
	}

	return routes, nil
}

func (s *Store) boundaryTimestamp(ctx context.Context, direction int) (*time.Time, error) {
	var record ctdf.PositionRecord

	opts := options.FindOne().
		SetSort(bson.D{{Key: "timestamp", Value: direction}}).
		SetProjection(bson.D{{Key: "timestamp", Value: 1}})

	err := s.collection.FindOne(ctx, bson.M{}, opts).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &record.Timestamp, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.collection.Database().Client().Disconnect(ctx)
}
