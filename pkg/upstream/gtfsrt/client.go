package gtfsrt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/upstream"
	"google.golang.org/protobuf/proto"
)

// Client reads GTFS-Realtime vehicle position feeds, one feed URL per route type
type Client struct {
	Feeds      map[ctdf.RouteType]string
	Timeout    time.Duration
	HTTPClient *http.Client
}

func NewClient(feeds map[ctdf.RouteType]string, timeout time.Duration) *Client {
	return &Client{
		Feeds:      feeds,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type feedResult struct {
	routeType ctdf.RouteType
	reports   []upstream.RawReport
	err       error
}

func (c *Client) Fetch(ctx context.Context, routeTypes []ctdf.RouteType) ([]upstream.RawReport, error) {
	p := pool.NewWithResults[feedResult]()

	for _, routeType := range routeTypes {
		routeType := routeType

		p.Go(func() feedResult {
			feedURL, exists := c.Feeds[routeType]
			if !exists {
				return feedResult{routeType: routeType, err: fmt.Errorf("no feed configured")}
			}

			reports, err := c.FetchFeed(ctx, feedURL, routeType)
			return feedResult{routeType: routeType, reports: reports, err: err}
		})
	}

	var reports []upstream.RawReport
	var errs []error
	for _, result := range p.Wait() {
		if result.err != nil {
			log.Error().Err(result.err).Str("routetype", result.routeType.Name()).Msg("Failed to fetch GTFS-RT feed")
			errs = append(errs, &upstream.RouteTypeError{RouteType: result.routeType, Err: result.err})
			continue
		}

		reports = append(reports, result.reports...)
	}

	return reports, errors.Join(errs...)
}

func (c *Client) FetchFeed(ctx context.Context, feedURL string, routeType ctdf.RouteType) ([]upstream.RawReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return ParseFeed(body, routeType, feedURL, time.Now().UTC())
}

// ParseFeed converts the vehicle position entities of a serialised FeedMessage into raw reports.
// Trip updates and alerts in the same feed are ignored.
func ParseFeed(body []byte, routeType ctdf.RouteType, datasetID string, receivedAt time.Time) ([]upstream.RawReport, error) {
	feed := gtfs.FeedMessage{}
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("malformed payload: %w", err)
	}

	var headerTimestamp *time.Time
	if feed.GetHeader().Timestamp != nil {
		timestamp := time.Unix(int64(feed.GetHeader().GetTimestamp()), 0).UTC()
		headerTimestamp = &timestamp
	}

	var reports []upstream.RawReport

	for _, entity := range feed.GetEntity() {
		vehiclePosition := entity.GetVehicle()
		if vehiclePosition == nil || entity.GetIsDeleted() {
			continue
		}

		report := upstream.RawReport{
			VehicleID:  upstream.String(vehicleIdentifier(entity, vehiclePosition)),
			RouteType:  &routeType,
			Timestamp:  headerTimestamp,
			ReceivedAt: receivedAt,
			DataSource: &ctdf.DataSource{
				OriginalFormat: "gtfs-rt",
				Provider:       "GTFS-RT",
				DatasetID:      datasetID,
			},
		}

		if trip := vehiclePosition.GetTrip(); trip != nil {
			report.RouteID = upstream.String(trip.GetRouteId())
			report.RunID = upstream.String(trip.GetTripId())

			if trip.DirectionId != nil {
				report.DirectionID = upstream.Int(int(trip.GetDirectionId()))
			}
		}

		if position := vehiclePosition.GetPosition(); position != nil {
			report.Latitude = upstream.Float64(float64(position.GetLatitude()))
			report.Longitude = upstream.Float64(float64(position.GetLongitude()))

			if position.Bearing != nil {
				report.Heading = upstream.Float64(float64(position.GetBearing()))
			}
		}

		if vehiclePosition.Timestamp != nil {
			timestamp := time.Unix(int64(vehiclePosition.GetTimestamp()), 0).UTC()
			report.Timestamp = &timestamp
		}

		reports = append(reports, report)
	}

	return reports, nil
}

func vehicleIdentifier(entity *gtfs.FeedEntity, vehiclePosition *gtfs.VehiclePosition) string {
	descriptor := vehiclePosition.GetVehicle()

	if descriptor.GetId() != "" {
		return descriptor.GetId()
	}
	if descriptor.GetLabel() != "" {
		return descriptor.GetLabel()
	}
	if entity.GetId() != "" {
		return entity.GetId()
	}

	return ""
}
