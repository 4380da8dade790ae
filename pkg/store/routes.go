package store

import (
	"context"
	"time"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
)

// RouteLister is implemented by stores that can find distinct routes without returning whole records
type RouteLister interface {
	DistinctRoutes(ctx context.Context, since time.Time) ([]ctdf.Route, error)
}

// DistinctRoutes returns the distinct (route id, route type) pairs with timestamp >= since, in no
// particular order. Records missing either half are ignored. Stores that are not a RouteLister are
// scanned with QueryRange.
func DistinctRoutes(ctx context.Context, s Store, since time.Time) ([]ctdf.Route, error) {
	if lister, ok := s.(RouteLister); ok {
		return lister.DistinctRoutes(ctx, since)
	}

	records, err := s.QueryRange(ctx, Query{Since: since})
	if err != nil {
		return nil, err
	}

	seen := map[ctdf.Route]bool{}
	routes := []ctdf.Route{}

	for _, record := range records {
		if !record.HasRoute() {
			continue
		}

		route := ctdf.Route{RouteID: *record.RouteID, RouteType: *record.RouteType}
		if !seen[route] {
			seen[route] = true
			routes = append(routes, route)
		}
	}

	return routes, nil
}
