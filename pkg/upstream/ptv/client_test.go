package ptv

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/upstream"
)

const testAPIKey = "9c132d31-6a30-4cac-8d8b-8a1970834799"

type fakePTV struct {
	t           *testing.T
	routeCalls  atomic.Int32
	failRoutes  map[string]bool
	failTypes   map[string]bool
	slowRoutes  map[string]time.Duration
	routesByTyp map[string]string
	runsByRoute map[string]string
}

func (f *fakePTV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	signed, signature, found := strings.Cut(r.RequestURI, "&signature=")
	if !found {
		http.Error(w, "missing signature", http.StatusForbidden)
		return
	}
	mac := hmac.New(sha1.New, []byte(testAPIKey))
	mac.Write([]byte(signed))
	if strings.ToUpper(hex.EncodeToString(mac.Sum(nil))) != signature {
		http.Error(w, "bad signature", http.StatusForbidden)
		return
	}

	if r.URL.Path == "/v3/routes" {
		f.routeCalls.Add(1)
		routeType := r.URL.Query().Get("route_types")
		if f.failTypes[routeType] {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, f.routesByTyp[routeType])
		return
	}

	var routeID, routeType int
	if _, err := fmt.Sscanf(r.URL.Path, "/v3/runs/route/%d/route_type/%d", &routeID, &routeType); err != nil {
		http.NotFound(w, r)
		return
	}
	assert.Equal(f.t, "All", r.URL.Query().Get("expand"))

	key := fmt.Sprintf("%d", routeID)
	if delay, ok := f.slowRoutes[key]; ok {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if f.failRoutes[key] {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	fmt.Fprint(w, f.runsByRoute[key])
}

func newFakePTV(t *testing.T) *fakePTV {
	return &fakePTV{
		t:          t,
		failRoutes: map[string]bool{},
		failTypes:  map[string]bool{},
		slowRoutes: map[string]time.Duration{},
		routesByTyp: map[string]string{
			"1": `{"routes":[{"route_id":1041,"route_type":1,"route_name":"Brunswick - St Kilda","route_number":"96"},{"route_id":725,"route_type":1,"route_name":"Melbourne University - Kew","route_number":"16"}]}`,
			"2": `{"routes":[{"route_id":13024,"route_type":2,"route_name":"Box Hill - Port Melbourne","route_number":"109"}]}`,
		},
		runsByRoute: map[string]string{
			"1041": `{"runs":[
				{"run_id":0,"run_ref":"96-T1","route_id":1041,"route_type":1,"direction_id":4,"vehicle_position":{"latitude":-37.8136,"longitude":144.9631,"bearing":181.6,"datetime_utc":"2026-03-01T09:15:00Z"}},
				{"run_id":0,"run_ref":"96-T2","route_id":1041,"route_type":1,"direction_id":5,"vehicle_position":null}
			]}`,
			"725": `{"runs":[
				{"run_id":8812,"run_ref":"","route_id":725,"route_type":1,"vehicle_position":{"latitude":-37.80,"longitude":144.99,"datetime_utc":"not a time"}}
			]}`,
			"13024": `{"runs":[
				{"run_id":0,"run_ref":"109-B7","route_id":13024,"route_type":2,"direction_id":1,"vehicle_position":{"latitude":-37.82,"longitude":145.12,"bearing":90,"datetime_utc":"2026-03-01T09:15:30Z"}}
			]}`,
		},
	}
}

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "3000999", testAPIKey, 4, 2*time.Second)
}

func TestSignURL(t *testing.T) {
	client := NewClient("https://timetableapi.ptv.vic.gov.au/", "3000999", testAPIKey, 1, time.Second)

	signed := client.SignURL("/v3/routes", url.Values{"route_types": []string{"1"}})

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "timetableapi.ptv.vic.gov.au", parsed.Host)
	assert.Equal(t, "/v3/routes", parsed.Path)
	assert.Equal(t, "3000999", parsed.Query().Get("devid"))
	assert.Equal(t, "1", parsed.Query().Get("route_types"))

	mac := hmac.New(sha1.New, []byte(testAPIKey))
	mac.Write([]byte("/v3/routes?devid=3000999&route_types=1"))
	expected := strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
	assert.Equal(t, expected, parsed.Query().Get("signature"))
	assert.Len(t, expected, 40)
}

func TestFetch(t *testing.T) {
	fake := newFakePTV(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	reports, err := newTestClient(server.URL).Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram, ctdf.RouteTypeBus})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	byVehicle := map[string]upstream.RawReport{}
	for _, report := range reports {
		require.NotNil(t, report.VehicleID)
		byVehicle[*report.VehicleID] = report
	}

	tram := byVehicle["96-T1"]
	require.NotNil(t, tram.RouteID)
	assert.Equal(t, "1041", *tram.RouteID)
	assert.Equal(t, ctdf.RouteTypeTram, *tram.RouteType)
	assert.Equal(t, 181.6, *tram.Heading)
	assert.Equal(t, 4, *tram.DirectionID)
	assert.Nil(t, tram.RunID)
	require.NotNil(t, tram.Timestamp)
	assert.True(t, tram.Timestamp.Equal(time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)))
	assert.Equal(t, "PTV", tram.DataSource.Provider)

	// run_ref missing so run_id identifies the vehicle, unparseable time is left for the normalizer
	fallback := byVehicle["8812"]
	require.NotNil(t, fallback.RunID)
	assert.Equal(t, "8812", *fallback.RunID)
	assert.Nil(t, fallback.Timestamp)
	assert.Nil(t, fallback.Heading)
	assert.False(t, fallback.ReceivedAt.IsZero())

	bus := byVehicle["109-B7"]
	assert.Equal(t, ctdf.RouteTypeBus, *bus.RouteType)
	assert.Equal(t, "13024", *bus.RouteID)
}

func TestFetchRouteFailureIsSkipped(t *testing.T) {
	fake := newFakePTV(t)
	fake.failRoutes["725"] = true
	server := httptest.NewServer(fake)
	defer server.Close()

	reports, err := newTestClient(server.URL).Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "96-T1", *reports[0].VehicleID)
}

func TestFetchRouteTypeFailure(t *testing.T) {
	fake := newFakePTV(t)
	fake.failTypes["1"] = true
	server := httptest.NewServer(fake)
	defer server.Close()

	reports, err := newTestClient(server.URL).Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram, ctdf.RouteTypeBus})
	require.Error(t, err)

	var routeTypeErr *upstream.RouteTypeError
	require.ErrorAs(t, err, &routeTypeErr)
	assert.Equal(t, ctdf.RouteTypeTram, routeTypeErr.RouteType)
	assert.Contains(t, err.Error(), "Tram")

	require.Len(t, reports, 1)
	assert.Equal(t, "109-B7", *reports[0].VehicleID)
}

func TestFetchRequestTimeout(t *testing.T) {
	fake := newFakePTV(t)
	fake.slowRoutes["725"] = 2 * time.Second
	server := httptest.NewServer(fake)
	defer server.Close()

	client := NewClient(server.URL, "3000999", testAPIKey, 2, 100*time.Millisecond)

	start := time.Now()
	reports, err := client.Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, reports, 1)
	assert.Equal(t, "96-T1", *reports[0].VehicleID)
}

func TestFetchMalformedPayload(t *testing.T) {
	fake := newFakePTV(t)
	fake.routesByTyp["1"] = `{"routes":`
	server := httptest.NewServer(fake)
	defer server.Close()

	_, err := newTestClient(server.URL).Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed payload")
}

func TestRouteCache(t *testing.T) {
	fake := newFakePTV(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	client := newTestClient(server.URL)
	client.RouteCache = NewRedisRouteCache(redisClient)

	for i := 0; i < 3; i++ {
		reports, err := client.Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram})
		require.NoError(t, err)
		assert.Len(t, reports, 2)
	}

	assert.Equal(t, int32(1), fake.routeCalls.Load())
	assert.True(t, mr.Exists("ptv/routes/1"))

	mr.FastForward(routeCacheExpiration + time.Minute)

	_, err := client.Fetch(context.Background(), []ctdf.RouteType{ctdf.RouteTypeTram})
	require.NoError(t, err)
	assert.Equal(t, int32(2), fake.routeCalls.Load())
}
