package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/availability"
	"github.com/iliyamo/hostel-bed-holds/internal/blocking"
	"github.com/iliyamo/hostel-bed-holds/internal/conflict"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
	"github.com/iliyamo/hostel-bed-holds/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AdminHandler serves date blocking, OTA booking intake and exports.
type AdminHandler struct {
	Blocker   *blocking.Blocker
	Resolver  *conflict.Resolver
	Calc      *availability.Calculator
	Inventory *model.Inventory
	Logger    *zap.Logger
}

func NewAdminHandler(b *blocking.Blocker, r *conflict.Resolver, calc *availability.Calculator, inv *model.Inventory, l *zap.Logger) *AdminHandler {
	if b == nil || r == nil || calc == nil || inv == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	return &AdminHandler{Blocker: b, Resolver: r, Calc: calc, Inventory: inv, Logger: logger.OrNop(l)}
}

type blockReq struct {
	RoomID    string `json:"roomId"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Reason    string `json:"reason"`
	BlockType string `json:"blockType"`
}

type bookingView struct {
	ID            string    `json:"id"`
	RoomID        string    `json:"roomId"`
	CheckIn       string    `json:"checkIn"`
	CheckOut      string    `json:"checkOut"`
	Beds          int       `json:"beds"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	Source        string    `json:"source"`
	ExternalRef   string    `json:"externalRef,omitempty"`
	HoldID        string    `json:"holdId,omitempty"`
	Total         float64   `json:"total"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toBookingViews(bs []model.Booking) []bookingView {
	out := make([]bookingView, 0, len(bs))
	for _, b := range bs {
		out = append(out, bookingView{
			ID:            b.ID,
			RoomID:        b.RoomID,
			CheckIn:       b.Dates.CheckIn.Format(model.DateLayout),
			CheckOut:      b.Dates.CheckOut.Format(model.DateLayout),
			Beds:          b.Beds,
			Status:        string(b.Status),
			PaymentStatus: b.PaymentStatus,
			Source:        string(b.Source),
			ExternalRef:   b.ExternalRef,
			HoldID:        b.HoldID,
			Total:         float64(b.TotalCents) / 100,
			CreatedAt:     b.CreatedAt,
		})
	}
	return out
}

// queryRange reads ?from=&to= and writes the 400 itself when they are bad.
func queryRange(c echo.Context) (model.DateRange, bool, error) {
	dates, err := model.ParseDateRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return model.DateRange{}, false, fail(c, http.StatusBadRequest, CodeInvalidDates, err.Error())
	}
	return dates, true, nil
}

// BlockDates handles POST /admin/block-dates.
func (h *AdminHandler) BlockDates(c echo.Context) error {
	var req blockReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
	}
	dates, err := model.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidDates, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	blk, err := h.Blocker.BlockDates(ctx, strings.TrimSpace(req.RoomID), dates, req.Reason, req.BlockType)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "blockId": blk.ID, "block": blk})
}

// UnblockDates handles DELETE /admin/block-dates/:id.
func (h *AdminHandler) UnblockDates(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "block id is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	blk, err := h.Blocker.UnblockDates(ctx, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "unblocked": blk})
}

// ListBlocks handles GET /admin/block-dates?from=&to=[&roomId=].
func (h *AdminHandler) ListBlocks(c echo.Context) error {
	dates, ok, err := queryRange(c)
	if !ok {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	blocks, err := h.Blocker.ListBlocks(ctx, strings.TrimSpace(c.QueryParam("roomId")), dates)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "blocks": blocks})
}

// UnblockRange handles POST /admin/block-dates/unblock-range.  Only blocks
// lying entirely inside the range are removed.
func (h *AdminHandler) UnblockRange(c echo.Context) error {
	var req blockReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
	}
	dates, err := model.ParseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidDates, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	n, err := h.Blocker.UnblockDateRange(ctx, strings.TrimSpace(req.RoomID), dates)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "removed": n})
}

// ImportBooking handles POST /admin/bookings/import.  An admitted booking
// answers 201, a repeat of an imported reservation 200 and a rejection 409.
func (h *AdminHandler) ImportBooking(c echo.Context) error {
	var ext conflict.ExternalBooking
	if err := c.Bind(&ext); err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	res, err := h.Resolver.Import(ctx, ext)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	switch {
	case res.Duplicate:
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "duplicate": true, "result": res})
	case !res.Proceed:
		return c.JSON(http.StatusConflict, echo.Map{"ok": false, "error": CodeConflict, "message": res.Reason, "result": res})
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "bookingId": res.BookingID, "result": res})
}

// Conflicts handles GET /admin/bookings/conflicts?roomId=&from=&to=[&excludeId=].
func (h *AdminHandler) Conflicts(c echo.Context) error {
	dates, ok, err := queryRange(c)
	if !ok {
		return err
	}
	roomID := strings.TrimSpace(c.QueryParam("roomId"))
	if roomID == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "roomId is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	found, err := h.Resolver.FindConflicts(ctx, roomID, dates, c.QueryParam("excludeId"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "strategy": h.Resolver.Strategy(), "conflicts": toBookingViews(found)})
}

// Duplicates handles GET /admin/bookings/duplicates?roomId=&from=&to=.
func (h *AdminHandler) Duplicates(c echo.Context) error {
	dates, ok, err := queryRange(c)
	if !ok {
		return err
	}
	roomID := strings.TrimSpace(c.QueryParam("roomId"))
	if roomID == "" {
		return fail(c, http.StatusBadRequest, CodeInvalidRequest, "roomId is required")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	found, err := h.Resolver.FindPotentialDuplicates(ctx, roomID, dates)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "bookings": toBookingViews(found)})
}

// ExportOccupancy handles GET /admin/occupancy/export?from=&to= and
// streams an xlsx workbook.
func (h *AdminHandler) ExportOccupancy(c echo.Context) error {
	dates, ok, err := queryRange(c)
	if !ok {
		return err
	}
	if dates.Nights() > report.MaxNights {
		return respondError(c, h.Logger, fmt.Errorf("%w: %d nights, max %d", report.ErrRangeTooLong, dates.Nights(), report.MaxNights))
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	nightly, err := h.Calc.Nightly(ctx, dates)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	data, err := report.OccupancyWorkbook(h.Inventory, dates, nightly)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	name := fmt.Sprintf("occupancy_%s_%s.xlsx", dates.CheckIn.Format(model.DateLayout), dates.CheckOut.Format(model.DateLayout))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
