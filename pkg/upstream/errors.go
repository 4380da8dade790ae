package upstream

import (
	"fmt"

	"github.com/travigo/vehiclehistory/pkg/ctdf"
)

// RouteTypeError records the failure of a single route type within a fetch
type RouteTypeError struct {
	RouteType ctdf.RouteType
	Err       error
}

func (e *RouteTypeError) Error() string {
	return fmt.Sprintf("fetching %s: %v", e.RouteType.Name(), e.Err)
}

func (e *RouteTypeError) Unwrap() error {
	return e.Err
}
