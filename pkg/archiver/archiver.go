package archiver

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/query"
)

// Archiver exports a history window to CSV, one row per position ordered by vehicle then time
type Archiver struct {
	Query           *query.Service
	OutputDirectory string

	Window    time.Duration
	VehicleID string
	RouteID   string
	Limit     int
}

type archiveRow struct {
	VehicleID   string `csv:"vehicle_id"`
	RouteID     string `csv:"route_id"`
	RouteType   string `csv:"route_type"`
	RunID       string `csv:"run_id"`
	Latitude    string `csv:"latitude"`
	Longitude   string `csv:"longitude"`
	Heading     string `csv:"heading"`
	DirectionID string `csv:"direction_id"`
	Timestamp   string `csv:"timestamp"`
}

// Perform writes the archive and returns the file path and number of rows written
func (a *Archiver) Perform(ctx context.Context) (string, int, error) {
	window := a.Window
	if window <= 0 {
		window = query.DefaultHistoryWindow
	}

	now := time.Now
	if a.Query.Now != nil {
		now = a.Query.Now
	}
	startTime := now().UTC().Add(-window)
	log.Info().Time("start", startTime).Str("vehicle", a.VehicleID).Str("route", a.RouteID).Msg("Running Archive process")

	history, err := a.Query.History(ctx, query.HistoryRequest{
		VehicleID: a.VehicleID,
		RouteID:   a.RouteID,
		Window:    window,
		Limit:     a.Limit,
	})
	if err != nil {
		return "", 0, err
	}

	rows := make([]*archiveRow, 0, history.TotalPoints)
	for _, vehicleID := range history.VehicleIDs {
		for _, record := range history.Vehicles[vehicleID] {
			rows = append(rows, newArchiveRow(&record))
		}
	}

	filename := path.Join(a.OutputDirectory, fmt.Sprintf("%s.csv", startTime.Format(time.RFC3339)))

	file, err := os.Create(filename)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return "", 0, err
	}

	log.Info().Str("file", filename).Int("records", len(rows)).Int("vehicles", len(history.VehicleIDs)).Msg("Archive written")

	return filename, len(rows), nil
}

func newArchiveRow(record *ctdf.PositionRecord) *archiveRow {
	row := &archiveRow{
		VehicleID: record.VehicleID,
		Latitude:  strconv.FormatFloat(record.Latitude, 'f', -1, 64),
		Longitude: strconv.FormatFloat(record.Longitude, 'f', -1, 64),
		Timestamp: record.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	if record.RouteID != nil {
		row.RouteID = *record.RouteID
	}
	if record.RouteType != nil {
		row.RouteType = record.RouteType.Name()
	}
	if record.RunID != nil {
		row.RunID = *record.RunID
	}
	if record.Heading != nil {
		row.Heading = strconv.Itoa(*record.Heading)
	}
	if record.DirectionID != nil {
		row.DirectionID = strconv.Itoa(*record.DirectionID)
	}

	return row
}
