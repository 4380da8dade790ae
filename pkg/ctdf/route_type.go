package ctdf

import (
	"fmt"
	"strconv"
	"strings"
)

type RouteType int

//goland:noinspection GoUnusedConst
const (
	RouteTypeTrain    RouteType = 0
	RouteTypeTram     RouteType = 1
	RouteTypeBus      RouteType = 2
	RouteTypeRegional RouteType = 3
)

var AllRouteTypes = []RouteType{RouteTypeTrain, RouteTypeTram, RouteTypeBus, RouteTypeRegional}

func (r RouteType) Name() string {
	switch r {
	case RouteTypeTrain:
		return "Train"
	case RouteTypeTram:
		return "Tram"
	case RouteTypeBus:
		return "Bus"
	case RouteTypeRegional:
		return "Regional"
	default:
		return "Unknown"
	}
}

func (r RouteType) Valid() bool {
	return r >= RouteTypeTrain && r <= RouteTypeRegional
}

func (r RouteType) String() string {
	return r.Name()
}

// ParseRouteType accepts the numeric value or the (case insensitive) name
func ParseRouteType(value string) (RouteType, error) {
	value = strings.TrimSpace(value)

	if number, err := strconv.Atoi(value); err == nil {
		routeType := RouteType(number)
		if !routeType.Valid() {
			return 0, fmt.Errorf("unknown route type %d", number)
		}
		return routeType, nil
	}

	for _, routeType := range AllRouteTypes {
		if strings.EqualFold(routeType.Name(), value) {
			return routeType, nil
		}
	}

	// PTV calls regional services V/Line
	if strings.EqualFold(value, "vline") {
		return RouteTypeRegional, nil
	}

	return 0, fmt.Errorf("unknown route type %q", value)
}

func ParseRouteTypes(value string) ([]RouteType, error) {
	var routeTypes []RouteType
	seen := map[RouteType]bool{}

	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}

		routeType, err := ParseRouteType(part)
		if err != nil {
			return nil, err
		}

		if !seen[routeType] {
			seen[routeType] = true
			routeTypes = append(routeTypes, routeType)
		}
	}

	return routeTypes, nil
}
