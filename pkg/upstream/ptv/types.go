package ptv

type routesResponse struct {
	Routes []route `json:"routes"`
}

type route struct {
	RouteID     int    `json:"route_id"`
	RouteType   int    `json:"route_type"`
	RouteName   string `json:"route_name"`
	RouteNumber string `json:"route_number"`
}

type runsResponse struct {
	Runs []run `json:"runs"`
}

type run struct {
	RunID           int              `json:"run_id"`
	RunRef          string           `json:"run_ref"`
	RouteID         int              `json:"route_id"`
	RouteType       int              `json:"route_type"`
	DirectionID     *int             `json:"direction_id"`
	VehiclePosition *vehiclePosition `json:"vehicle_position"`
}

type vehiclePosition struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	Bearing     *float64 `json:"bearing"`
	DatetimeUTC *string  `json:"datetime_utc"`
}
