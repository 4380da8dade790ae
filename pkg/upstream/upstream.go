package upstream

import (
	"context"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
)

// RawReport is an unvalidated position observation as received from an upstream source.
// A nil field means the source did not provide it.
type RawReport struct {
	VehicleID   *string
	RouteID     *string
	RouteType   *ctdf.RouteType
	RunID       *string
	Latitude    *float64
	Longitude   *float64
	Heading     *float64
	DirectionID *int
	Timestamp   *time.Time

	ReceivedAt time.Time
	DataSource *ctdf.DataSource
}

// Client fetches the current raw reports for a set of route types.
// A failure for one route type must not prevent the others from being fetched, the error
// returned describes the route types that failed alongside whatever reports were retrieved.
type Client interface {
	Fetch(ctx context.Context, routeTypes []ctdf.RouteType) ([]RawReport, error)
}

func String(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Float64(f float64) *float64 {
	return &f
}

func Int(i int) *int {
	return &i
}
