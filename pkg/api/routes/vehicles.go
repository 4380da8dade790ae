package routes

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"
	"github.com/rs/zerolog/log"
	"github.com/travigo/vehiclehistory/pkg/ctdf"
	"github.com/travigo/vehiclehistory/pkg/query"

	iso8601 "github.com/senseyeio/duration"
)

var recordGroups = []string{"basic", "detailed"}

type routeResponse struct {
	RouteID   string         `json:"route_id"`
	RouteType ctdf.RouteType `json:"route_type"`
	Name      string         `json:"name"`
	TypeName  string         `json:"type_name"`
}

func VehiclesRouter(router fiber.Router, service *query.Service) {
	router.Get("/routes", func(c *fiber.Ctx) error {
		return listActiveRoutes(c, service)
	})
	router.Get("/current", func(c *fiber.Ctx) error {
		return getCurrentSnapshot(c, service)
	})
	router.Get("/history", func(c *fiber.Ctx) error {
		return getHistory(c, service)
	})
	router.Get("/stats", func(c *fiber.Ctx) error {
		return getStats(c, service)
	})
}

func listActiveRoutes(c *fiber.Ctx, service *query.Service) error {
	routes, err := service.ActiveRoutes(c.UserContext())
	if err != nil {
		return sendStoreError(c, err)
	}

	response := make([]routeResponse, 0, len(routes))
	for _, route := range routes {
		response = append(response, routeResponse{
			RouteID:   route.RouteID,
			RouteType: route.RouteType,
			Name:      route.DisplayName(),
			TypeName:  route.RouteType.Name(),
		})
	}

	return c.JSON(fiber.Map{
		"routes": response,
		"count":  len(response),
	})
}

func getCurrentSnapshot(c *fiber.Ctx, service *query.Service) error {
	snapshot, err := service.Snapshot(c.UserContext())
	if err != nil {
		return sendStoreError(c, err)
	}

	vehiclesReduced, err := reduceRecords(snapshot.Vehicles)
	if err != nil {
		return sendReduceError(c, err)
	}

	return c.JSON(fiber.Map{
		"vehicles":  vehiclesReduced,
		"count":     len(snapshot.Vehicles),
		"timestamp": snapshot.Timestamp,
	})
}

func getHistory(c *fiber.Ctx, service *query.Service) error {
	request := query.HistoryRequest{
		VehicleID: c.Query("vehicle_id"),
		RouteID:   c.Query("route_id"),
	}

	var err error
	if request.Window, err = parseHistoryWindow(c.Query("hours"), c.Query("window"), service.Now); err != nil {
		c.SendStatus(fiber.StatusBadRequest)
		return c.JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if limitString := c.Query("limit"); limitString != "" {
		request.Limit, err = strconv.Atoi(limitString)
		if err != nil || request.Limit <= 0 {
			c.SendStatus(fiber.StatusBadRequest)
			return c.JSON(fiber.Map{
				"error": "Parameter limit should be a positive integer",
			})
		}
	}

	history, err := service.History(c.UserContext(), request)
	if err != nil {
		return sendStoreError(c, err)
	}

	vehicles := fiber.Map{}
	for _, vehicleID := range history.VehicleIDs {
		vehicles[vehicleID], err = reduceRecords(history.Vehicles[vehicleID])
		if err != nil {
			return sendReduceError(c, err)
		}
	}

	return c.JSON(fiber.Map{
		"vehicles":     vehicles,
		"vehicleCount": len(history.VehicleIDs),
		"totalPoints":  history.TotalPoints,
		"timeRange": fiber.Map{
			"start": history.Start,
			"end":   history.End,
		},
	})
}

func getStats(c *fiber.Ctx, service *query.Service) error {
	stats, err := service.Store.Stats(c.UserContext())
	if err != nil {
		return sendStoreError(c, err)
	}

	return c.JSON(stats)
}

// parseHistoryWindow accepts fractional hours or an ISO8601 duration, the duration wins when both are given
func parseHistoryWindow(hoursString string, windowString string, now func() time.Time) (time.Duration, error) {
	if windowString != "" {
		window, err := iso8601.ParseISO8601(windowString)
		if err != nil {
			return 0, errors.New("Parameter window should be an ISO8601 duration")
		}

		start := time.Now()
		if now != nil {
			start = now()
		}

		duration := window.Shift(start).Sub(start)
		if duration <= 0 {
			return 0, errors.New("Parameter window should be a positive duration")
		}

		return duration, nil
	}

	if hoursString == "" {
		return query.DefaultHistoryWindow, nil
	}

	hours, err := strconv.ParseFloat(hoursString, 64)
	if err != nil || hours <= 0 || math.IsInf(hours, 0) || math.IsNaN(hours) {
		return 0, errors.New("Parameter hours should be a positive number")
	}

	return time.Duration(hours * float64(time.Hour)), nil
}

func reduceRecords(records []ctdf.PositionRecord) (interface{}, error) {
	if len(records) == 0 {
		return []interface{}{}, nil
	}

	return sheriff.Marshal(&sheriff.Options{
		Groups: recordGroups,
	}, records)
}

func sendStoreError(c *fiber.Ctx, err error) error {
	log.Error().Err(err).Str("path", c.Path()).Msg("Query failed")

	c.SendStatus(fiber.StatusInternalServerError)
	return c.JSON(fiber.Map{
		"error": err.Error(),
	})
}

func sendReduceError(c *fiber.Ctx, err error) error {
	c.SendStatus(fiber.StatusInternalServerError)
	return c.JSON(fiber.Map{
		"error": "Sherrif could not reduce vehicle positions",
	})
}
