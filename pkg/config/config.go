package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/util"
)

const defaultPTVBaseURL = "https://timetableapi.ptv.vic.gov.au"
const defaultMongoConnectionString = "mongodb://localhost:27017/"
const defaultMongoDatabase = "vehiclehistory"
const defaultRedisAddress = ""

// Victoria, Australia with some slack around the state border
var defaultBounds = ctdf.BoundingBox{
	MinLatitude:  -39.5,
	MinLongitude: 140.8,
	MaxLatitude:  -33.8,
	MaxLongitude: 150.2,
}

type Config struct {
	Upstream   string `validate:"oneof=ptv gtfsrt"`
	PTVUserID  string `validate:"required_if=Upstream ptv"`
	PTVAPIKey  string `validate:"required_if=Upstream ptv"`
	PTVBaseURL string `validate:"required,url"`

	GTFSRTFeeds map[ctdf.RouteType]string `validate:"required_if=Upstream gtfsrt,dive,url"`

	RouteTypes      []ctdf.RouteType `validate:"min=1,dive,gte=0,lte=3"`
	PollInterval    time.Duration    `validate:"gte=1s"`
	ParallelWorkers int              `validate:"gte=1,lte=100"`
	RequestTimeout  time.Duration    `validate:"gte=1s"`

	RetentionWindow   time.Duration `validate:"gte=1m"`
	RetentionInterval time.Duration `validate:"gte=1m"`

	WriteAttempts int           `validate:"gte=1,lte=10"`
	WriteBackoff  time.Duration `validate:"gte=0"`
	StoreTimeout  time.Duration `validate:"gte=1s"`
	EnableDBWrite bool

	Store              string `validate:"oneof=mongodb postgres memory"`
	MongoConnection    string `validate:"required_if=Store mongodb"`
	MongoDatabase      string `validate:"required_if=Store mongodb"`
	PostgresConnection string `validate:"required_if=Store postgres"`

	RedisAddress  string
	RedisPassword string
	RedisDatabase int `validate:"gte=0"`

	ElasticsearchAddress  string `validate:"omitempty,url"`
	ElasticsearchUsername string
	ElasticsearchPassword string

	Bounds         ctdf.BoundingBox
	RouteZonesFile string `validate:"omitempty,file"`
}

func LoadFromEnvironment() (*Config, error) {
	return Load(util.GetEnvironmentVariables())
}

func Load(env map[string]string) (*Config, error) {
	var err error

	cfg := &Config{
		Upstream:   util.EnvironmentString(env, "TRAVIGO_UPSTREAM", "ptv"),
		PTVUserID:  env["TRAVIGO_PTV_USER_ID"],
		PTVAPIKey:  env["TRAVIGO_PTV_API_KEY"],
		PTVBaseURL: util.EnvironmentString(env, "TRAVIGO_PTV_BASE_URL", defaultPTVBaseURL),

		EnableDBWrite: util.EnvironmentBool(env, "TRAVIGO_ENABLE_DB_WRITE", true),

		Store:              util.EnvironmentString(env, "TRAVIGO_STORE", "mongodb"),
		MongoConnection:    util.EnvironmentString(env, "TRAVIGO_MONGODB_CONNECTION", defaultMongoConnectionString),
		MongoDatabase:      util.EnvironmentString(env, "TRAVIGO_MONGODB_DATABASE", defaultMongoDatabase),
		PostgresConnection: env["TRAVIGO_POSTGRES_CONNECTION"],

		RedisAddress:  util.EnvironmentString(env, "TRAVIGO_REDIS_ADDRESS", defaultRedisAddress),
		RedisPassword: env["TRAVIGO_REDIS_PASSWORD"],

		ElasticsearchAddress:  env["TRAVIGO_ELASTICSEARCH_ADDRESS"],
		ElasticsearchUsername: env["TRAVIGO_ELASTICSEARCH_USERNAME"],
		ElasticsearchPassword: env["TRAVIGO_ELASTICSEARCH_PASSWORD"],

		RouteZonesFile: env["TRAVIGO_ROUTE_ZONES_FILE"],
	}

	if cfg.RouteTypes, err = ctdf.ParseRouteTypes(util.EnvironmentString(env, "TRAVIGO_ROUTE_TYPES", "0,1,2,3")); err != nil {
		return nil, fmt.Errorf("TRAVIGO_ROUTE_TYPES: %w", err)
	}
	if cfg.GTFSRTFeeds, err = parseFeeds(env["TRAVIGO_GTFSRT_FEEDS"]); err != nil {
		return nil, fmt.Errorf("TRAVIGO_GTFSRT_FEEDS: %w", err)
	}
	if cfg.Bounds, err = parseBounds(env["TRAVIGO_BOUNDS"]); err != nil {
		return nil, fmt.Errorf("TRAVIGO_BOUNDS: %w", err)
	}

	durations := []struct {
		name         string
		target       *time.Duration
		defaultValue time.Duration
	}{
		{"TRAVIGO_POLL_INTERVAL", &cfg.PollInterval, 30 * time.Second},
		{"TRAVIGO_REQUEST_TIMEOUT", &cfg.RequestTimeout, 15 * time.Second},
		{"TRAVIGO_RETENTION_WINDOW", &cfg.RetentionWindow, 24 * time.Hour},
		{"TRAVIGO_RETENTION_INTERVAL", &cfg.RetentionInterval, time.Hour},
		{"TRAVIGO_WRITE_BACKOFF", &cfg.WriteBackoff, time.Second},
		{"TRAVIGO_STORE_TIMEOUT", &cfg.StoreTimeout, 10 * time.Second},
	}
	for _, d := range durations {
		if *d.target, err = util.EnvironmentDuration(env, d.name, d.defaultValue); err != nil {
			return nil, fmt.Errorf("%s: %w", d.name, err)
		}
	}

	ints := []struct {
		name         string
		target       *int
		defaultValue int
	}{
		{"TRAVIGO_PARALLEL_WORKERS", &cfg.ParallelWorkers, 10},
		{"TRAVIGO_WRITE_ATTEMPTS", &cfg.WriteAttempts, 3},
		{"TRAVIGO_REDIS_DATABASE", &cfg.RedisDatabase, 0},
	}
	for _, i := range ints {
		if *i.target, err = util.EnvironmentInt(env, i.name, i.defaultValue); err != nil {
			return nil, fmt.Errorf("%s: %w", i.name, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Fields only the collector needs, the api and archive commands never talk to the upstream
var upstreamFields = []string{"Upstream", "PTVUserID", "PTVAPIKey", "PTVBaseURL", "GTFSRTFeeds"}

// Validate checks everything except the upstream settings, see ValidateUpstream
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.StructExcept(c, upstreamFields...); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

func (c *Config) ValidateUpstream() error {
	v := validator.New()
	if err := v.StructPartial(c, upstreamFields...); err != nil {
		return fmt.Errorf("invalid upstream configuration: %w", err)
	}

	return nil
}

// Log writes the effective configuration with the credentials masked
func (c *Config) Log() {
	routeTypeNames := make([]string, 0, len(c.RouteTypes))
	for _, routeType := range c.RouteTypes {
		routeTypeNames = append(routeTypeNames, routeType.Name())
	}

	event := log.Info().
		Str("upstream", c.Upstream).
		Str("routetypes", strings.Join(routeTypeNames, ",")).
		Dur("pollinterval", c.PollInterval).
		Dur("retentionwindow", c.RetentionWindow).
		Dur("retentioninterval", c.RetentionInterval).
		Int("parallelworkers", c.ParallelWorkers).
		Int("writeattempts", c.WriteAttempts).
		Str("store", c.Store).
		Bool("dbwrite", c.EnableDBWrite).
		Str("bounds", c.Bounds.String())

	if c.Upstream == "ptv" {
		event = event.
			Str("ptvuserid", util.MaskSecret(c.PTVUserID, 4)).
			Str("ptvapikey", strings.Repeat("*", 20))
	}

	event.Msg("Loaded configuration")
}

func parseFeeds(value string) (map[ctdf.RouteType]string, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	feeds := map[ctdf.RouteType]string{}

	for _, pair := range strings.Split(value, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}

		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("feed %q should be routetype=url", pair)
		}

		routeType, err := ctdf.ParseRouteType(parts[0])
		if err != nil {
			return nil, err
		}

		feeds[routeType] = strings.TrimSpace(parts[1])
	}

	return feeds, nil
}

func parseBounds(value string) (ctdf.BoundingBox, error) {
	if strings.TrimSpace(value) == "" {
		return defaultBounds, nil
	}

	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return ctdf.BoundingBox{}, fmt.Errorf("bounds must contain 4 co-ordinates")
	}

	var coordinates [4]float64
	for i, part := range parts {
		coordinate, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return ctdf.BoundingBox{}, err
		}
		coordinates[i] = coordinate
	}

	return ctdf.BoundingBox{
		MinLatitude:  coordinates[0],
		MinLongitude: coordinates[1],
		MaxLatitude:  coordinates[2],
		MaxLongitude: coordinates[3],
	}, nil
}
