package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/ghi-aggregation/internal/accuracy"
	"github.com/i474232898/ghi-aggregation/internal/ingest"
	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

var validate = validator.New()

// IngestionFunc runs one ingestion of the configured feed.
type IngestionFunc func(ctx context.Context) (ingest.Report, error)

// RegisterRoutes wires the HTTP handlers into the Fiber app. runIngestion may
// be nil when no feed is configured.
func RegisterRoutes(app *fiber.App, service *irradiance.Service, runIngestion IngestionFunc) {
	v1 := app.Group("/api/v1")

	v1.Get("/departments", func(c *fiber.Ctx) error {
		departments, err := service.Departments(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(departments)
	})

	v1.Get("/departments/lookup", func(c *fiber.Ctx) error {
		name := strings.TrimSpace(c.Query("name"))
		if name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name query parameter is required")
		}
		department, err := service.DepartmentByName(c.UserContext(), name)
		if err != nil {
			return err
		}
		return c.JSON(department)
	})

	v1.Get("/departments/:id/municipalities", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		municipalities, err := service.Municipalities(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(municipalities)
	})

	v1.Get("/locations/annual", func(c *fiber.Ctx) error {
		year, err := queryYear(c)
		if err != nil {
			return err
		}
		figures, err := service.LocationAnnualFigures(c.UserContext(), year)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"year":      year,
			"locations": figures,
		})
	})

	v1.Get("/departments/:id/rollup", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		year, err := queryYear(c)
		if err != nil {
			return err
		}
		stats, err := service.DepartmentRollup(c.UserContext(), id, year)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"department_id":  id,
			"year":           year,
			"municipalities": stats,
		})
	})

	v1.Get("/municipalities/:id/range", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var q rangeQuery
		if err := q.bind(c); err != nil {
			return err
		}
		values, err := service.MonthRange(c.UserContext(), id, q.Start, q.End, q.Year)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"municipality_id": id,
			"year":            q.Year,
			"start":           strings.ToUpper(q.Start),
			"end":             strings.ToUpper(q.End),
			"values":          values,
		})
	})

	v1.Get("/municipalities/:id/historical", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		years, err := parseYears(c.Query("years"))
		if err != nil {
			return err
		}
		series, err := service.HistoricalSeries(c.UserContext(), id, years)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"municipality_id": id,
			"series":          series,
		})
	})

	v1.Post("/municipalities/:id/forecast", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var req forecastRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		result, err := service.Forecast(c.UserContext(), id, req.TargetYear, req.StartMonth, req.EndMonth)
		if err != nil {
			return err
		}
		return c.JSON(result)
	})

	v1.Post("/municipalities/:id/evaluate", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var req evaluateRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		ev, err := service.Evaluate(c.UserContext(), id, req.Year, req.Predictions)
		if err != nil {
			return err
		}
		return c.JSON(ev)
	})

	v1.Post("/departments/:id/evaluate", func(c *fiber.Ctx) error {
		id, err := pathID(c)
		if err != nil {
			return err
		}
		var req departmentEvaluateRequest
		if err := bindBody(c, &req); err != nil {
			return err
		}
		report, err := service.EvaluateDepartment(c.UserContext(), id, req.Year, req.Municipalities)
		if err != nil {
			return err
		}
		return c.JSON(report)
	})

	v1.Post("/ingestions", func(c *fiber.Ctx) error {
		if runIngestion == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "ingestion feed is not configured")
		}
		report, err := runIngestion(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(report)
	})
}

type forecastRequest struct {
	TargetYear int    `json:"target_year" validate:"required,gte=1981,lte=2100"`
	StartMonth string `json:"start_month" validate:"required"`
	EndMonth   string `json:"end_month" validate:"required"`
}

type evaluateRequest struct {
	Year        int                     `json:"year" validate:"required,gte=1981"`
	Predictions []irradiance.MonthValue `json:"predictions" validate:"required,min=1,dive"`
}

type departmentEvaluateRequest struct {
	Year           int                                 `json:"year" validate:"required,gte=1981"`
	Municipalities []irradiance.MunicipalityPrediction `json:"municipalities" validate:"required,min=1,dive"`
}

// rangeQuery holds query parameters for the month range endpoint.
type rangeQuery struct {
	Start string `validate:"required"`
	End   string `validate:"required"`
	Year  int    `validate:"required"`
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	year, err := queryYear(c)
	if err != nil {
		return err
	}
	q.Start = c.Query("start")
	q.End = c.Query("end")
	q.Year = year
	if err := validate.Struct(q); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "start and end query parameters are required")
	}
	return nil
}

func bindBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return nil
}

func pathID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid id %q", c.Params("id")))
	}
	return uint(id), nil
}

func queryYear(c *fiber.Ctx) (int, error) {
	raw := c.Query("year")
	if raw == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "year query parameter is required")
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid year %q", raw))
	}
	return year, nil
}

// parseYears reads a comma separated year list. An empty string selects the
// default years.
func parseYears(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var years []int
	for _, part := range strings.Split(raw, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || y <= 0 {
			return nil, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid year %q", part))
		}
		years = append(years, y)
	}
	return years, nil
}

// statusClientClosedRequest is the nginx convention for a request the client
// abandoned before the answer was ready.
const statusClientClosedRequest = 499

// ErrorHandler renders every handler error as {"error": true, "code", "message"}
// with the status matching the error kind. Upstream and internal failures get
// a fixed message; their detail only goes to the log.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, code := Classify(err)
	message := err.Error()
	switch status {
	case fiber.StatusInternalServerError:
		message = "internal server error"
	case fiber.StatusBadGateway:
		message = "forecast unavailable"
	case fiber.StatusGatewayTimeout:
		message = "request timed out"
	case statusClientClosedRequest:
		message = "request cancelled"
	}
	return c.Status(status).JSON(fiber.Map{
		"error":   true,
		"code":    code,
		"message": message,
	})
}

// Classify maps an error to its HTTP status and machine-readable code.
func Classify(err error) (int, string) {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code, strings.ToLower(strings.ReplaceAll(http.StatusText(fe.Code), " ", "_"))
	case errors.Is(err, irradiance.ErrNotFound):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, irradiance.ErrNoHistoricalData):
		return fiber.StatusNotFound, "no_historical_data"
	case errors.Is(err, irradiance.ErrNoData):
		return fiber.StatusNotFound, "no_data"
	case errors.Is(err, irradiance.ErrInvalidMonth):
		return fiber.StatusBadRequest, "invalid_month"
	case errors.Is(err, irradiance.ErrInvalidRange):
		return fiber.StatusBadRequest, "invalid_range"
	case errors.Is(err, accuracy.ErrLengthMismatch):
		return fiber.StatusUnprocessableEntity, "length_mismatch"
	case errors.Is(err, accuracy.ErrDivisionByZero):
		return fiber.StatusUnprocessableEntity, "division_by_zero"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "request_cancelled"
	case errors.Is(err, irradiance.ErrForecastUnavailable):
		return fiber.StatusBadGateway, "forecast_unavailable"
	case errors.Is(err, ingest.ErrAlreadyRunning):
		return fiber.StatusConflict, "ingestion_running"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}
