package normalizer

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/upstream"
)

type Normalizer struct {
	Bounds      ctdf.BoundingBox
	Corrections *RouteCorrections
}

// Normalize validates a raw report and converts it to the stored shape.
// Optional fields the source did not provide stay nil.
func (n *Normalizer) Normalize(raw upstream.RawReport) (ctdf.PositionRecord, error) {
	var vehicleID string
	if raw.VehicleID != nil {
		vehicleID = strings.TrimSpace(*raw.VehicleID)
	}
	if vehicleID == "" {
		return ctdf.PositionRecord{}, reject("missing_vehicle_id", "", ErrMissingVehicleID)
	}

	if !finite(raw.Latitude) || !finite(raw.Longitude) {
		return ctdf.PositionRecord{}, reject("missing_coordinates", vehicleID, ErrMissingCoordinates)
	}
	latitude, longitude := *raw.Latitude, *raw.Longitude

	if !n.Bounds.Contains(latitude, longitude) {
		return ctdf.PositionRecord{}, reject("out_of_bounds", vehicleID,
			fmt.Errorf("%w: %f,%f", ErrOutOfBounds, latitude, longitude))
	}

	record := ctdf.PositionRecord{
		VehicleID:   vehicleID,
		RouteID:     trimmed(raw.RouteID),
		RunID:       trimmed(raw.RunID),
		Latitude:    latitude,
		Longitude:   longitude,
		Heading:     normaliseHeading(raw.Heading),
		DirectionID: raw.DirectionID,
		Timestamp:   normaliseTimestamp(raw.Timestamp, raw.ReceivedAt),
		DataSource:  raw.DataSource,
	}

	if raw.RouteType != nil && raw.RouteType.Valid() {
		routeType := *raw.RouteType
		record.RouteType = &routeType
	}

	if record.RouteID != nil && n.Corrections != nil {
		corrected := n.Corrections.Correct(*record.RouteID, latitude, longitude)
		if corrected != *record.RouteID {
			log.Debug().
				Str("vehicle", vehicleID).
				Str("from", *record.RouteID).
				Str("to", corrected).
				Msg("Overriding route id")
			record.RouteID = &corrected
		}
	}

	return record, nil
}

// NormalizeAll returns the valid records in input order and the number of rejects per reason
func (n *Normalizer) NormalizeAll(raws []upstream.RawReport) ([]ctdf.PositionRecord, map[string]int) {
	records := make([]ctdf.PositionRecord, 0, len(raws))
	rejects := map[string]int{}

	for _, raw := range raws {
		record, err := n.Normalize(raw)
		if err != nil {
			var rejectErr *RejectError
			if errors.As(err, &rejectErr) {
				rejects[rejectErr.Reason]++
			} else {
				rejects["unknown"]++
			}

			log.Debug().Err(err).Msg("Rejected raw report")
			continue
		}

		records = append(records, record)
	}

	return records, rejects
}

func finite(value *float64) bool {
	return value != nil && !math.IsNaN(*value) && !math.IsInf(*value, 0)
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}

	s := strings.TrimSpace(*value)
	if s == "" {
		return nil
	}
	return &s
}

// Bearings further out than two turns are upstream garbage rather than an unwrapped angle
const maxHeadingMagnitude = 720

// Headings are whole degrees in [0, 360), 0 is north so an unknown heading stays nil
func normaliseHeading(heading *float64) *int {
	if !finite(heading) || math.Abs(*heading) > maxHeadingMagnitude {
		return nil
	}

	degrees := int(math.Round(*heading)) % 360
	if degrees < 0 {
		degrees += 360
	}
	return &degrees
}

// Stored timestamps are UTC with millisecond precision
func normaliseTimestamp(timestamp *time.Time, receivedAt time.Time) time.Time {
	if timestamp == nil || timestamp.IsZero() {
		return receivedAt.UTC().Truncate(time.Millisecond)
	}

	return timestamp.UTC().Truncate(time.Millisecond)
}
