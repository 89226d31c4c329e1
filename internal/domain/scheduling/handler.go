package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/HansFred87/Mindease/internal/platform/apperror"
	"github.com/HansFred87/Mindease/internal/platform/auth"
	"github.com/HansFred87/Mindease/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	counselor := api.Group("", auth.RequireRole(auth.RoleCounselor))
	counselor.GET("/availability", h.ListSlots)
	counselor.POST("/availability", h.CreateSlot)
	counselor.DELETE("/availability/:id", h.DeleteSlot)
	counselor.POST("/availability/copy-last-week", h.CopyLastWeek)
	counselor.POST("/availability/clear-week", h.ClearWeek)
	counselor.POST("/availability/vacation", h.SetVacation)
	counselor.GET("/appointments/stats", h.Stats)
	counselor.POST("/sessions/:id/start", h.StartSession)
	counselor.POST("/sessions/:id/complete", h.CompleteSession)

	patient := api.Group("", auth.RequireRole(auth.RolePatient))
	patient.POST("/bookings", h.BookSlot)
	patient.DELETE("/bookings/:id", h.CancelBooking)

	// Any authenticated role.
	api.GET("/availability/counselor/:id", h.ListBookable)
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
}

// respondError turns a domain failure into the API's error body. Errors
// without a reason code fall through to echo's default handler as a 500.
func respondError(c echo.Context, err error) error {
	var e *apperror.Error
	if !errors.As(err, &e) {
		return err
	}
	return c.JSON(apperror.HTTPStatus(err), echo.Map{
		"success": false,
		"code":    e.Code,
		"message": e.Message,
	})
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// -- Availability --

func (h *Handler) CreateSlot(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	var in CreateSlotInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sl, err := h.svc.CreateSlot(c.Request().Context(), actor, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "slot_id": sl.ID})
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *Handler) ListSlots(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListSlots(c.Request().Context(), actor, pg.Limit, pg.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// bookableSlot is the patient-facing view of an open slot.
type bookableSlot struct {
	ID        uuid.UUID `json:"id"`
	Date      string    `json:"date"`
	Weekday   string    `json:"weekday"`
	Start     string    `json:"start"`
	End       string    `json:"end"`
	Total     int       `json:"total"`
	Booked    int       `json:"booked"`
	Available int       `json:"available"`
}

func (h *Handler) ListBookable(c echo.Context) error {
	counselorID, err := pathID(c)
	if err != nil {
		return err
	}
	var from, to time.Time
	if v := c.QueryParam("from"); v != "" {
		if from, err = ParseDate(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if to, err = ParseDate(v); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
	}
	items, err := h.svc.ListBookable(c.Request().Context(), counselorID, from, to)
	if err != nil {
		return respondError(c, err)
	}
	views := make([]bookableSlot, 0, len(items))
	for _, sl := range items {
		views = append(views, bookableSlot{
			ID:        sl.ID,
			Date:      sl.Date.Format(dateLayout),
			Weekday:   sl.Weekday,
			Start:     sl.StartTime,
			End:       sl.EndTime,
			Total:     sl.TotalCapacity,
			Booked:    sl.BookedCount,
			Available: sl.Available(),
		})
	}
	return c.JSON(http.StatusOK, views)
}

func (h *Handler) CopyLastWeek(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	n, err := h.svc.CopyLastWeek(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "created": n})
}

func (h *Handler) ClearWeek(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	n, err := h.svc.ClearWeek(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "deleted": n})
}

func (h *Handler) SetVacation(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	var in VacationInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.SetVacation(c.Request().Context(), actor, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "marked": n})
}

// -- Bookings --

type bookRequest struct {
	SlotID uuid.UUID `json:"slot_id"`
}

func (h *Handler) BookSlot(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	var in bookRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if in.SlotID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "slot_id is required")
	}
	appt, err := h.svc.BookSlot(c.Request().Context(), actor, in.SlotID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "appointment": appt})
}

func (h *Handler) CancelBooking(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.CancelBooking(c.Request().Context(), actor, id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// -- Appointments --

func (h *Handler) ListAppointments(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	dash, err := h.svc.Appointments(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, dash)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	id, err := pathID(c)
	if err != nil {
		return err
	}
	appt, err := h.svc.GetAppointment(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Stats(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	stats, err := h.svc.Stats(c.Request().Context(), actor)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// -- Sessions --

func (h *Handler) StartSession(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	id, err := pathID(c)
	if err != nil {
		return err
	}
	link, err := h.svc.StartSession(c.Request().Context(), actor, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "meet_link": link})
}

type completeRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) CompleteSession(c echo.Context) error {
	actor, _ := auth.ActorFromContext(c.Request().Context())
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in completeRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CompleteSession(c.Request().Context(), actor, id, in.Notes); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
