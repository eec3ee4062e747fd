package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/gofiber/fiber/v2"

	"brandpulse/internal/metrics"
	"brandpulse/internal/tenants"
	"brandpulse/internal/timewindow"
)

const maxBatchDates = 92

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) metricNamesHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"metrics": s.engine.MetricNames()})
}

func (s *Server) tenantsHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tenants": s.engine.TenantTags()})
}

func (s *Server) deltaHandler(c *fiber.Ctx) error {
	window, err := parseWindow(c)
	if err != nil {
		return badRequest(c, err.Error(), "INVALID_WINDOW")
	}
	metric := c.Query("metric")
	if metric == "" {
		return badRequest(c, "metric query parameter is required", "MISSING_METRIC")
	}
	align, err := parseAlign(c)
	if err != nil {
		return badRequest(c, err.Error(), "INVALID_ALIGN_MODE")
	}

	result, err := s.engine.GetDelta(c.UserContext(), c.Params("tenant"), metric, window, align)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(result)
}

func (s *Server) deltasHandler(c *fiber.Ctx) error {
	window, err := parseWindow(c)
	if err != nil {
		return badRequest(c, err.Error(), "INVALID_WINDOW")
	}
	align, err := parseAlign(c)
	if err != nil {
		return badRequest(c, err.Error(), "INVALID_ALIGN_MODE")
	}

	var names []string
	if raw := c.Query("metrics"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}

	set, err := s.engine.GetDeltas(c.UserContext(), c.Params("tenant"), names, window, align)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(set)
}

func (s *Server) dailyHandler(c *fiber.Ctx) error {
	date, err := timewindow.ParseDate(c.Params("date"))
	if err != nil {
		return badRequest(c, "invalid date, expected YYYY-MM-DD", "INVALID_DATE")
	}

	snapshot, err := s.engine.GetCachedDailyMetrics(c.UserContext(), c.Params("tenant"), date)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(snapshot)
}

type dailyBatchParams struct {
	Dates []string `json:"dates"`
}

func (s *Server) dailyBatchHandler(c *fiber.Ctx) error {
	var params dailyBatchParams
	if err := c.BodyParser(&params); err != nil {
		return badRequest(c, "invalid request body", "INVALID_BODY")
	}
	if len(params.Dates) == 0 {
		return badRequest(c, "dates array is required", "MISSING_DATES")
	}
	if len(params.Dates) > maxBatchDates {
		return badRequest(c, "too many dates in one batch", "BATCH_TOO_LARGE")
	}

	dates := make([]timewindow.Date, 0, len(params.Dates))
	for _, raw := range params.Dates {
		date, err := timewindow.ParseDate(raw)
		if err != nil {
			return badRequest(c, "invalid date, expected YYYY-MM-DD: "+raw, "INVALID_DATE")
		}
		dates = append(dates, date)
	}

	results, err := s.engine.GetCachedDailyMetricsBatch(c.UserContext(), c.Params("tenant"), dates)
	if err != nil {
		return s.handleError(c, err)
	}
	return c.JSON(fiber.Map{"days": results})
}

// parseWindow reads the start/end query parameters.
func parseWindow(c *fiber.Ctx) (timewindow.Window, error) {
	return timewindow.ParseWindow(c.Query("start"), c.Query("end"))
}

// parseAlign validates the align query parameter without consuming it, so
// the engine re-parses the mode on its own boundary.
func parseAlign(c *fiber.Ctx) (string, error) {
	align := c.Query("align")
	if _, err := metrics.ParseCompareMode(align); err != nil {
		return "", err
	}
	return align, nil
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var invalidWindow *timewindow.InvalidWindowError
	if errors.As(err, &invalidWindow) {
		return badRequest(c, invalidWindow.Error(), "INVALID_WINDOW")
	}

	var unknownMetric *metrics.UnknownMetricError
	if errors.As(err, &unknownMetric) {
		return badRequest(c, unknownMetric.Error(), "UNKNOWN_METRIC")
	}

	var unknownTenant *tenants.UnknownTenantError
	if errors.As(err, &unknownTenant) {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": unknownTenant.Error(),
			"code":  "TENANT_NOT_FOUND",
		})
	}

	s.logger.Error("request failed",
		slog.String("path", c.Path()), slog.Any("error", err))
	return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
		"code":  "INTERNAL_ERROR",
	})
}

func badRequest(c *fiber.Ctx, message, code string) error {
	return c.Status(http.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
