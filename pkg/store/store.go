package store

import (
	"context"
	"strings"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
)

type Order int

const (
	OrderAscending Order = iota
	OrderDescending
)

func (o Order) String() string {
	if o == OrderDescending {
		return "desc"
	}
	return "asc"
}

// Query selects records with timestamp >= Since matching the optional equality filters.
// Limit 0 means unlimited.
type Query struct {
	Since     time.Time
	VehicleID string
	RouteID   string
	Order     Order
	Limit     int
}

type Stats struct {
	TotalRecords   int64      `json:"total_records"`
	UniqueVehicles int64      `json:"unique_vehicles"`
	OldestRecord   *time.Time `json:"oldest_record"`
	NewestRecord   *time.Time `json:"newest_record"`
}

// Store persists position records keyed by (vehicle id, timestamp).
// Implementations must be safe for concurrent use.
//
// InsertBatch treats records whose key already exists as no-ops.
// QueryRange orders strictly by timestamp and breaks ties by ascending vehicle id in both
// directions so the result for an unchanged store is always the same.
type Store interface {
	InsertBatch(ctx context.Context, records []ctdf.PositionRecord) error
	QueryRange(ctx context.Context, query Query) ([]ctdf.PositionRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// CompareRecords orders two records the way QueryRange returns them
func CompareRecords(a, b *ctdf.PositionRecord, order Order) int {
	if !a.Timestamp.Equal(b.Timestamp) {
		if a.Timestamp.Before(b.Timestamp) == (order == OrderAscending) {
			return -1
		}
		return 1
	}

	return strings.Compare(a.VehicleID, b.VehicleID)
}

// Matches reports whether the record satisfies the query filters, ignoring the limit
func (q Query) Matches(record *ctdf.PositionRecord) bool {
	if record.Timestamp.Before(q.Since) {
		return false
	}
	if q.VehicleID != "" && record.VehicleID != q.VehicleID {
		return false
	}
	if q.RouteID != "" && (record.RouteID == nil || *record.RouteID != q.RouteID) {
		return false
	}

	return true
}
