package query

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/store"
	"golang.org/x/exp/slices"
)

const (
	ActiveRoutesWindow = 2 * time.Hour

	SnapshotWindow    = time.Hour
	SnapshotScanLimit = 1000

	DefaultHistoryWindow = 24 * time.Hour
	DefaultHistoryLimit  = 10000
)

// Service answers the read patterns over the store. Every call reads the store directly and keeps
// nothing between calls.
type Service struct {
	Store store.Store
	Now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{
		Store: s,
		Now:   time.Now,
	}
}

// ActiveRoutes returns the distinct routes seen in the last two hours ordered by route type then
// route id. Records without a route id or route type are ignored.
func (s *Service) ActiveRoutes(ctx context.Context) ([]ctdf.Route, error) {
	routes, err := store.DistinctRoutes(ctx, s.Store, s.now().Add(-ActiveRoutesWindow))
	if err != nil {
		return nil, err
	}

	slices.SortFunc(routes, compareRoutes)

	return routes, nil
}

type Snapshot struct {
	Vehicles  []ctdf.PositionRecord
	Timestamp time.Time
}

// Snapshot returns the latest record per vehicle from the newest rows of the last hour.
// Only SnapshotScanLimit rows are scanned so under heavy load a vehicle whose latest record falls
// outside those rows is left out.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := s.now()

	records, err := s.Store.QueryRange(ctx, store.Query{
		Since: now.Add(-SnapshotWindow),
		Order: store.OrderDescending,
		Limit: SnapshotScanLimit,
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	vehicles := []ctdf.PositionRecord{}

	for _, record := range records {
		if seen[record.VehicleID] {
			continue
		}

		seen[record.VehicleID] = true
		vehicles = append(vehicles, record)
	}

	return &Snapshot{
		Vehicles:  vehicles,
		Timestamp: now.UTC(),
	}, nil
}

type HistoryRequest struct {
	VehicleID string
	RouteID   string
	Window    time.Duration
	Limit     int
}

type History struct {
	Vehicles    map[string][]ctdf.PositionRecord
	VehicleIDs  []string
	TotalPoints int
	Start       *time.Time
	End         *time.Time
}

// History returns ascending per vehicle trajectories. The limit applies to all vehicles combined
// and Start/End are the first and last timestamps actually returned.
func (s *Service) History(ctx context.Context, request HistoryRequest) (*History, error) {
	window := request.Window
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	limit := request.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	records, err := s.Store.QueryRange(ctx, store.Query{
		Since:     s.now().Add(-window),
		VehicleID: request.VehicleID,
		RouteID:   request.RouteID,
		Order:     store.OrderAscending,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	history := &History{
		Vehicles:    map[string][]ctdf.PositionRecord{},
		VehicleIDs:  []string{},
		TotalPoints: len(records),
	}

	for _, record := range records {
		if _, exists := history.Vehicles[record.VehicleID]; !exists {
			history.VehicleIDs = append(history.VehicleIDs, record.VehicleID)
		}
		history.Vehicles[record.VehicleID] = append(history.Vehicles[record.VehicleID], record)
	}

	if len(records) > 0 {
		start := records[0].Timestamp
		end := records[len(records)-1].Timestamp
		history.Start = &start
		history.End = &end
	}

	return history, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Numeric route ids sort numerically ahead of the others so "96" comes before "109"
func compareRoutes(a, b ctdf.Route) int {
	if a.RouteType != b.RouteType {
		return int(a.RouteType) - int(b.RouteType)
	}

	aNumber, aErr := strconv.Atoi(a.RouteID)
	bNumber, bErr := strconv.Atoi(b.RouteID)

	switch {
	case aErr == nil && bErr == nil && aNumber != bNumber:
		return aNumber - bNumber
	case aErr == nil && bErr != nil:
		return -1
	case aErr != nil && bErr == nil:
		return 1
	}

	return strings.Compare(a.RouteID, b.RouteID)
}
