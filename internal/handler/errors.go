// Package handler implements the HTTP endpoints of the bed hold engine.
// Every response body carries "ok"; failures add "error" (a stable code)
// and "message".
package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/availability"
	"github.com/iliyamo/hostel-bed-holds/internal/blocking"
	"github.com/iliyamo/hostel-bed-holds/internal/conflict"
	"github.com/iliyamo/hostel-bed-holds/internal/holds"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/report"
	"github.com/iliyamo/hostel-bed-holds/internal/repository"
)

// Error codes returned in the "error" field.
const (
	CodeInvalidRequest           = "invalid_request"
	CodeInvalidHoldData          = "invalid_hold_data"
	CodeInvalidDates             = "invalid_dates"
	CodeHoldNotFound             = "hold_not_found"
	CodeNotFound                 = "not_found"
	CodeConflict                 = "conflict"
	CodeDuplicateHold            = "duplicate_hold"
	CodeInsufficientAvailability = "insufficient_availability"
	CodeUpstreamUnavailable      = "upstream_unavailable"
	CodeInternal                 = "internal_error"
)

var errorTable = []struct {
	target error
	status int
	code   string
}{
	{holds.ErrInvalidHoldData, http.StatusBadRequest, CodeInvalidHoldData},
	{holds.ErrHoldNotFound, http.StatusNotFound, CodeHoldNotFound},
	{holds.ErrDuplicateHold, http.StatusConflict, CodeDuplicateHold},
	{holds.ErrInsufficientAvailability, http.StatusConflict, CodeInsufficientAvailability},
	{availability.ErrUpstreamUnavailable, http.StatusInternalServerError, CodeUpstreamUnavailable},
	{repository.ErrUnavailable, http.StatusInternalServerError, CodeUpstreamUnavailable},
	{availability.ErrInvalidRange, http.StatusBadRequest, CodeInvalidDates},
	{availability.ErrUnknownRoom, http.StatusBadRequest, CodeInvalidRequest},
	{blocking.ErrInvalidRange, http.StatusBadRequest, CodeInvalidDates},
	{blocking.ErrConflict, http.StatusConflict, CodeConflict},
	{blocking.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{conflict.ErrInvalidBooking, http.StatusBadRequest, CodeInvalidRequest},
	{report.ErrRangeTooLong, http.StatusBadRequest, CodeInvalidDates},
	{model.ErrInvalidDateRange, http.StatusBadRequest, CodeInvalidDates},
	{repository.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{repository.ErrConflict, http.StatusConflict, CodeConflict},
}

// classify maps err to an HTTP status and error code.
func classify(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"ok": false, "error": code, "message": msg})
}

// respondError writes err using the shared taxonomy.  Internal errors are
// logged and their text is not exposed.
func respondError(c echo.Context, l *zap.Logger, err error) error {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		l.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("code", code),
			zap.Error(err),
		)
		if code == CodeInternal {
			msg = "internal error"
		}
	}
	return fail(c, status, code, msg)
}
