package collector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
)

type EventRecorder interface {
	RecordCycle(event *CycleEvent)
}

type CycleEvent struct {
	Timestamp     time.Time      `json:"timestamp"`
	RouteTypes    []string       `json:"routetypes"`
	Fetched       int            `json:"fetched"`
	Rejected      int            `json:"rejected"`
	RejectReasons map[string]int `json:"rejectreasons"`
	Duplicates    int            `json:"duplicates"`
	Written       int            `json:"written"`
	Attempts      int            `json:"attempts"`
	Dropped       bool           `json:"dropped"`
	DurationMS    int64          `json:"durationms"`
	Error         string         `json:"error,omitempty"`
}

func newCycleEvent(start time.Time, routeTypes []ctdf.RouteType, result CycleResult) *CycleEvent {
	event := &CycleEvent{
		Timestamp:     start.UTC(),
		RouteTypes:    []string{},
		Fetched:       result.Fetched,
		Rejected:      result.Rejected,
		RejectReasons: result.RejectReasons,
		Duplicates:    result.Duplicates,
		Written:       result.Written,
		Attempts:      result.Attempts,
		Dropped:       result.Dropped,
		DurationMS:    result.Duration.Milliseconds(),
	}

	for _, routeType := range routeTypes {
		event.RouteTypes = append(event.RouteTypes, routeType.Name())
	}

	var errs []string
	if result.FetchError != nil {
		errs = append(errs, result.FetchError.Error())
	}
	if result.WriteError != nil {
		errs = append(errs, result.WriteError.Error())
	}
	event.Error = strings.Join(errs, "; ")

	return event
}

type documentIndexer interface {
	IndexRequest(indexName string, document io.ReadSeeker)
}

// ElasticEventRecorder sends cycle events to a weekly Elasticsearch index
type ElasticEventRecorder struct {
	Indexer documentIndexer
}

func (e *ElasticEventRecorder) RecordCycle(event *CycleEvent) {
	eventJSON, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal cycle event")
		return
	}

	e.Indexer.IndexRequest(cycleEventsIndexName(event.Timestamp), bytes.NewReader(eventJSON))
}

func cycleEventsIndexName(timestamp time.Time) string {
	yearNumber, weekNumber := timestamp.ISOWeek()
	return fmt.Sprintf("vehiclehistory-ingest-events-%d-%d", yearNumber, weekNumber)
}

func routeTypeNames(routeTypes []ctdf.RouteType) string {
	names := make([]string, 0, len(routeTypes))
	for _, routeType := range routeTypes {
		names = append(names, routeType.Name())
	}
	return strings.Join(names, ",")
}
