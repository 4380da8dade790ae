package ctdf

import "fmt"

// Route is derived from recent position records and is only used for display and lookup
type Route struct {
	RouteID   string    `json:"route_id"`
	RouteType RouteType `json:"route_type"`
}

func (r Route) DisplayName() string {
	return fmt.Sprintf("%s %s", r.RouteType.Name(), r.RouteID)
}
