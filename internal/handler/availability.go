package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/hostel-bed-holds/internal/availability"
	"github.com/iliyamo/hostel-bed-holds/internal/logger"
	"github.com/iliyamo/hostel-bed-holds/internal/model"
)

// AvailabilityHandler serves occupancy reads and the room list.
type AvailabilityHandler struct {
	Calc      *availability.Calculator
	Inventory *model.Inventory
	Logger    *zap.Logger
}

func NewAvailabilityHandler(calc *availability.Calculator, inv *model.Inventory, l *zap.Logger) *AvailabilityHandler {
	if calc == nil || inv == nil {
		panic("nil dependency passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Calc: calc, Inventory: inv, Logger: logger.OrNop(l)}
}

// Get handles GET /availability?from=&to=[&roomId=].  "occupied" maps each
// room to its peak occupied bed count over the range.
func (h *AvailabilityHandler) Get(c echo.Context) error {
	dates, err := model.ParseDateRange(c.QueryParam("from"), c.QueryParam("to"))
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeInvalidDates, err.Error())
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()
	rep, err := h.Calc.ComputeOccupancy(ctx, strings.TrimSpace(c.QueryParam("roomId")), dates)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok":             true,
		"from":           rep.CheckIn,
		"to":             rep.CheckOut,
		"occupied":       rep.Occupied(),
		"rooms":          rep.Rooms,
		"unassignedHeld": rep.UnassignedHeld,
		"totalCapacity":  rep.TotalCapacity,
		"totalAvailable": rep.TotalAvailable,
	})
}

type roomView struct {
	ID       string             `json:"id"`
	Capacity int                `json:"capacity"`
	Category model.RoomCategory `json:"category"`
	Convert  model.RoomCategory `json:"autoConvert,omitempty"`
	Beds     []int              `json:"beds"`
}

// Rooms handles GET /rooms.
func (h *AvailabilityHandler) Rooms(c echo.Context) error {
	rooms := h.Inventory.Rooms()
	out := make([]roomView, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomView{ID: r.ID, Capacity: r.Capacity, Category: r.Category, Convert: r.AutoConvert, Beds: h.Inventory.Beds(r.ID)})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"ok":            true,
		"rooms":         out,
		"totalCapacity": h.Inventory.TotalCapacity(),
	})
}
