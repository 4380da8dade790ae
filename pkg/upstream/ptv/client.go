package ptv

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/upstream"
)

// Client talks to the PTV Timetable API v3
type Client struct {
	BaseURL string
	UserID  string
	APIKey  string

	Workers    int
	Timeout    time.Duration
	HTTPClient *http.Client

	// RouteCache is optional, without it the route list is requested on every fetch
	RouteCache cache.CacheInterface[string]
}

func NewClient(baseURL string, userID string, apiKey string, workers int, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		UserID:     userID,
		APIKey:     apiKey,
		Workers:    workers,
		Timeout:    timeout,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// SignURL builds the full request URL including the devid and HMAC-SHA1 signature
func (c *Client) SignURL(endpoint string, params url.Values) string {
	signedParams := url.Values{}
	for key, values := range params {
		signedParams[key] = values
	}
	signedParams.Set("devid", c.UserID)

	uri := fmt.Sprintf("%s?%s", endpoint, signedParams.Encode())

	mac := hmac.New(sha1.New, []byte(c.APIKey))
	mac.Write([]byte(uri))
	signature := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))

	return fmt.Sprintf("%s%s&signature=%s", c.BaseURL, uri, signature)
}

func (c *Client) Fetch(ctx context.Context, routeTypes []ctdf.RouteType) ([]upstream.RawReport, error) {
	var reports []upstream.RawReport
	var errs []error

	for _, routeType := range routeTypes {
		routeTypeReports, err := c.FetchRouteType(ctx, routeType)
		if err != nil {
			log.Error().Err(err).Str("routetype", routeType.Name()).Msg("Failed to fetch route type")
			errs = append(errs, &upstream.RouteTypeError{RouteType: routeType, Err: err})
			continue
		}

		reports = append(reports, routeTypeReports...)
	}

	return reports, errors.Join(errs...)
}

// FetchRouteType fetches the runs of every route of the route type in parallel.
// Failing routes are logged and skipped, only a failure to list the routes is an error.
func (c *Client) FetchRouteType(ctx context.Context, routeType ctdf.RouteType) ([]upstream.RawReport, error) {
	routeIDs, err := c.getRoutes(ctx, routeType)
	if err != nil {
		return nil, err
	}

	p := pool.NewWithResults[[]upstream.RawReport]().WithMaxGoroutines(c.workers())

	for _, routeID := range routeIDs {
		routeID := routeID

		p.Go(func() []upstream.RawReport {
			runs, err := c.getRunsForRoute(ctx, routeID, routeType)
			if err != nil {
				log.Warn().Err(err).Int("route", routeID).Str("routetype", routeType.Name()).Msg("Failed to fetch route runs")
				return nil
			}

			receivedAt := time.Now().UTC()
			var reports []upstream.RawReport
			for _, run := range runs {
				reports = append(reports, c.rawReportFromRun(run, routeID, routeType, receivedAt))
			}

			return reports
		})
	}

	var reports []upstream.RawReport
	for _, routeReports := range p.Wait() {
		reports = append(reports, routeReports...)
	}

	log.Debug().
		Str("routetype", routeType.Name()).
		Int("routes", len(routeIDs)).
		Int("reports", len(reports)).
		Msg("Fetched PTV vehicle positions")

	return reports, nil
}

func (c *Client) rawReportFromRun(run run, routeID int, routeType ctdf.RouteType, receivedAt time.Time) upstream.RawReport {
	vehicleID := run.RunRef
	if vehicleID == "" && run.RunID != 0 {
		vehicleID = strconv.Itoa(run.RunID)
	}

	if run.RouteID != 0 {
		routeID = run.RouteID
	}

	var runID *string
	if run.RunID != 0 {
		runID = upstream.String(strconv.Itoa(run.RunID))
	}

	report := upstream.RawReport{
		VehicleID:   upstream.String(vehicleID),
		RouteID:     upstream.String(strconv.Itoa(routeID)),
		RouteType:   &routeType,
		RunID:       runID,
		DirectionID: run.DirectionID,
		Latitude:    run.VehiclePosition.Latitude,
		Longitude:   run.VehiclePosition.Longitude,
		Heading:     run.VehiclePosition.Bearing,
		ReceivedAt:  receivedAt,
		DataSource: &ctdf.DataSource{
			OriginalFormat: "ptv-json",
			Provider:       "PTV",
			DatasetID:      fmt.Sprintf("ptv/runs/route_type/%d", routeType),
		},
	}

	if run.VehiclePosition.DatetimeUTC != nil {
		if timestamp, err := time.Parse(time.RFC3339, *run.VehiclePosition.DatetimeUTC); err == nil {
			report.Timestamp = &timestamp
		}
	}

	return report
}

func (c *Client) getRoutes(ctx context.Context, routeType ctdf.RouteType) ([]int, error) {
	cacheKey := fmt.Sprintf("ptv/routes/%d", routeType)

	if c.RouteCache != nil {
		if cached, err := c.RouteCache.Get(ctx, cacheKey); err == nil && cached != "" {
			var routeIDs []int
			if err := json.Unmarshal([]byte(cached), &routeIDs); err == nil {
				return routeIDs, nil
			}
		}
	}

	var response routesResponse
	params := url.Values{"route_types": []string{strconv.Itoa(int(routeType))}}
	if err := c.getJSON(ctx, "/v3/routes", params, &response); err != nil {
		return nil, err
	}

	routeIDs := make([]int, 0, len(response.Routes))
	for _, route := range response.Routes {
		routeIDs = append(routeIDs, route.RouteID)
	}

	if c.RouteCache != nil && len(routeIDs) > 0 {
		routeIDsJSON, _ := json.Marshal(routeIDs)
		if err := c.RouteCache.Set(ctx, cacheKey, string(routeIDsJSON)); err != nil {
			log.Warn().Err(err).Str("routetype", routeType.Name()).Msg("Failed to cache route list")
		}
	}

	return routeIDs, nil
}

func (c *Client) getRunsForRoute(ctx context.Context, routeID int, routeType ctdf.RouteType) ([]run, error) {
	var response runsResponse
	endpoint := fmt.Sprintf("/v3/runs/route/%d/route_type/%d", routeID, routeType)
	if err := c.getJSON(ctx, endpoint, url.Values{"expand": []string{"All"}}, &response); err != nil {
		return nil, err
	}

	var runs []run
	for _, run := range response.Runs {
		if run.VehiclePosition != nil {
			runs = append(runs, run)
		}
	}

	return runs, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, target any) error {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SignURL(endpoint, params), nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("requesting %s: HTTP %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, target); err != nil {
		return fmt.Errorf("malformed payload from %s: %w", endpoint, err)
	}

	return nil
}

func (c *Client) workers() int {
	if c.Workers < 1 {
		return 1
	}
	return c.Workers
}
