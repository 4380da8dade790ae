package normalizer

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"gopkg.in/yaml.v3"
)

// RouteCorrections rewrites the route id of vehicles reported inside a zone that belongs to a
// different route. Zones are checked in file order and the first match wins.
type RouteCorrections struct {
	Zones []RouteZone `yaml:"zones" validate:"dive"`
}

type RouteZone struct {
	RouteID string             `yaml:"route_id" validate:"required"`
	Bounds  []ctdf.BoundingBox `yaml:"bounds" validate:"min=1,dive"`
}

func LoadRouteCorrections(path string) (*RouteCorrections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	corrections, err := ParseRouteCorrections(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return corrections, nil
}

func ParseRouteCorrections(data []byte) (*RouteCorrections, error) {
	var corrections RouteCorrections
	if err := yaml.Unmarshal(data, &corrections); err != nil {
		return nil, err
	}

	v := validator.New()
	if err := v.Struct(corrections); err != nil {
		return nil, err
	}

	return &corrections, nil
}

func (c *RouteCorrections) Correct(routeID string, latitude float64, longitude float64) string {
	if routeID == "" {
		return routeID
	}

	for _, zone := range c.Zones {
		for _, bounds := range zone.Bounds {
			if bounds.Contains(latitude, longitude) {
				return zone.RouteID
			}
		}
	}

	return routeID
}
