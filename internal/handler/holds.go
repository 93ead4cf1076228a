package handler

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/holds"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

const (
	// requestTimeout bounds repository work done on behalf of one request.
	requestTimeout = 5 * time.Second
	// maxTotal keeps total*100 well inside int64.
	maxTotal = 1e12
)

// HoldHandler serves the guest hold lifecycle and the manual sweep.
type HoldHandler struct {
	Holds  *holds.Manager
	Logger *zap.Logger
}

// NewHoldHandler panics on a nil manager.
func NewHoldHandler(m *holds.Manager, l *zap.Logger) *HoldHandler {
	if m == nil {
		panic("nil manager passed to NewHoldHandler")
	}
	return &HoldHandler{Holds: m, Logger: logger.OrNop(l)}
}

type startHoldReq struct {
	HoldID    string          `json:"holdId"`
	RoomID    string          `json:"roomId"`
	CheckIn   string          `json:"checkIn"`
	CheckOut  string          `json:"checkOut"`
	BedsCount int             `json:"bedsCount"`
	Occupants model.Occupants `json:"occupants"`
	Total     float64         `json:"total"`
}

type confirmHoldReq struct {
	HoldID string `json:"holdId"`
	Status string `json:"status"`
}

type releaseHoldReq struct {
	HoldID string `json:"holdId"`
}

type holdView struct {
	HoldID        string          `json:"holdId"`
	RoomID        string          `json:"roomId,omitempty"`
	CheckIn       string          `json:"checkIn"`
	CheckOut      string          `json:"checkOut"`
	Nights        int             `json:"nights"`
	BedsCount     int             `json:"bedsCount"`
	Occupants     model.Occupants `json:"occupants"`
	Total         float64         `json:"total"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"paymentStatus,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

func toHoldView(h model.Hold) holdView {
	return holdView{
		HoldID:        h.ID,
		RoomID:        h.RoomID,
		CheckIn:       h.Dates.CheckIn.Format(model.DateLayout),
		CheckOut:      h.Dates.CheckOut.Format(model.DateLayout),
		Nights:        h.Dates.Nights(),
		BedsCount:     h.Beds,
		Occupants:     h.Occupants,
		Total:         float64(h.TotalCents) / 100,
		Status:        h.Status.String(),
		PaymentStatus: h.PaymentStatus,
		CreatedAt:     h.CreatedAt,
		ExpiresAt:     h.ExpiresAt,
	}
}

// Start handles POST /holds/start.  Malformed dates and counts are
// reported as invalid_hold_data.
func (h *HoldHandler) Start(c echo.Context) error {
	var req startHoldReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidHoldData, "invalid request body")
	}
	checkIn, err := model.ParseDate(req.CheckIn)
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidHoldData, "checkIn: "+err.Error())
	}
	checkOut, err := model.ParseDate(req.CheckOut)
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidHoldData, "checkOut: "+err.Error())
	}
	if math.IsNaN(req.Total) || math.IsInf(req.Total, 0) {
		return fail(c, http.StatusBadRequest, CodeInvalidHoldData, "total must be a number")
	}
	if math.Abs(req.Total) > maxTotal {
		return fail(c, http.StatusBadRequest, CodeInvalidHoldData, "total is out of range")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	hold, err := h.Holds.Create(ctx, holds.CreateRequest{
		ID:         req.HoldID,
		RoomID:     strings.TrimSpace(req.RoomID),
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Beds:       req.BedsCount,
		Occupants:  req.Occupants,
		TotalCents: int64(math.Round(req.Total * 100)),
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"ok":        true,
		"holdId":    hold.ID,
		"expiresAt": hold.ExpiresAt,
		"hold":      toHoldView(hold),
	})
}

// List handles GET /holds/list.
func (h *HoldHandler) List(c echo.Context) error {
	active := h.Holds.ListActive()
	views := make([]holdView, 0, len(active))
	for _, hold := range active {
		views = append(views, toHoldView(hold))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok":         true,
		"holds":      views,
		"stats":      h.Holds.Stats(),
		"ttlSeconds": int64(h.Holds.TTL() / time.Second),
	})
}

// Get handles GET /holds/:id and returns the hold in any state.
func (h *HoldHandler) Get(c echo.Context) error {
	hold, ok := h.Holds.Get(c.Param("id"))
	if !ok {
		return fail(c, http.StatusNotFound, CodeHoldNotFound, fmt.Sprintf("hold %s not found", c.Param("id")))
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "hold": toHoldView(hold)})
}

// Confirm handles POST /holds/confirm.  "status" is the payment status
// recorded on the hold and its booking; it defaults to "paid".
func (h *HoldHandler) Confirm(c echo.Context) error {
	var req confirmHoldReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
	}
	id := strings.TrimSpace(req.HoldID)
	if id == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "holdId is required")
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = "paid"
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	res, err := h.Holds.Confirm(ctx, id, status)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok":              true,
		"holdId":          res.Hold.ID,
		"status":          res.Hold.Status.String(),
		"paymentStatus":   res.Hold.PaymentStatus,
		"allocations":     res.Allocations,
		"bookingRecorded": res.BookingRecorded,
	})
}

// Release handles POST /holds/release.  Releasing a hold that already
// expired or was released succeeds without changing it.
func (h *HoldHandler) Release(c echo.Context) error {
	var req releaseHoldReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
	}
	id := strings.TrimSpace(req.HoldID)
	if id == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "holdId is required")
	}
	res, err := h.Holds.Release(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok":       true,
		"released": true,
		"changed":  res.Changed,
		"status":   res.Hold.Status.String(),
	})
}

// Cleanup handles DELETE /admin/holds/cleanup by running one sweep.
func (h *HoldHandler) Cleanup(c echo.Context) error {
	n := h.Holds.SweepExpired(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{
		"ok":             true,
		"holdsCleanedUp": n,
		"stats":          h.Holds.Stats(),
	})
}
