package normalizer

import (
	"errors"
	"fmt"
)

var (
	ErrMissingVehicleID   = errors.New("missing vehicle id")
	ErrMissingCoordinates = errors.New("missing coordinates")
	ErrOutOfBounds        = errors.New("coordinates out of bounds")
)

// RejectError is returned for a raw report that can not become a position record
type RejectError struct {
	Reason    string
	VehicleID string
	Err       error
}

func (e *RejectError) Error() string {
	if e.VehicleID == "" {
		return fmt.Sprintf("rejected report: %v", e.Err)
	}
	return fmt.Sprintf("rejected report for %s: %v", e.VehicleID, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

func reject(reason string, vehicleID string, err error) *RejectError {
	return &RejectError{Reason: reason, VehicleID: vehicleID, Err: err}
}
