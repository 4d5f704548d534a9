package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/Patrick-Flanagan-13/parent-invite-app/cmd/middleware"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/calendar"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/dto"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/model"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/service"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/token"
	"github.com/Patrick-Flanagan-13/parent-invite-app/pkg/validator"
)

type Handler struct {
	svc     *service.Service
	baseURL string
	log     *zerolog.Logger
	now     func() time.Time
}

func New(svc *service.Service, baseURL string, log *zerolog.Logger) *Handler {
	return &Handler{svc: svc, baseURL: baseURL, log: log, now: time.Now}
}

func (h *Handler) Health(c *ginext.Context) {
	dto.SuccessResponse(c, gin.H{"status": "up"})
}

func (h *Handler) ListSlots(c *ginext.Context) {
	from, ok := h.fromQuery(c)
	if !ok {
		return
	}
	slots, err := h.svc.Slots.ListSlots(c.Request.Context(), model.SlotFilter{
		EventPageID: c.Query("event_page_id"),
		From:        from,
	})
	if err != nil {
		h.fail(c, err, "failed to list slots")
		return
	}
	dto.SuccessResponse(c, nonNil(slots))
}

func (h *Handler) GetSlot(c *ginext.Context) {
	v, err := h.svc.Slots.GetSlot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to get slot")
		return
	}
	dto.SuccessResponse(c, v)
}

func (h *Handler) Signup(c *ginext.Context) {
	var req dto.SignupRequest
	if !h.bind(c, &req) {
		return
	}

	g, err := h.svc.Signups.AttemptSignup(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, err, "failed to create signup")
		return
	}

	dto.SuccessCreatedResponse(c, dto.SignupResponse{
		ID:            g.ID,
		SlotID:        g.SlotID,
		ParentName:    g.ParentName,
		ChildName:     g.ChildName,
		Email:         g.Email,
		AttendeeCount: g.AttendeeCount,
		CancelURL:     token.CancelURL(h.baseURL, g.CancellationToken),
		CreatedAt:     g.CreatedAt,
	})
}

func (h *Handler) ResolveCancellation(c *ginext.Context) {
	tok, ok := h.token(c)
	if !ok {
		return
	}
	d, err := h.svc.Cancellations.ResolveByToken(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, err, "failed to resolve cancellation token")
		return
	}
	dto.SuccessResponse(c, dto.NewCancellationView(*d))
}

func (h *Handler) Cancel(c *ginext.Context) {
	tok, ok := h.token(c)
	if !ok {
		return
	}
	d, err := h.svc.Cancellations.CancelByToken(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, err, "failed to cancel signup")
		return
	}
	dto.SuccessResponse(c, dto.NewCancellationView(*d))
}

func (h *Handler) TeacherSlots(c *ginext.Context) {
	from, ok := h.fromQuery(c)
	if !ok {
		return
	}
	if from.IsZero() {
		from = h.now()
	}
	u, slots, err := h.svc.Slots.ListTeacherSlots(c.Request.Context(), c.Param("username"), from)
	if err != nil {
		h.fail(c, err, "failed to list teacher slots")
		return
	}
	dto.SuccessResponse(c, gin.H{
		"teacher": gin.H{"username": u.Username, "name": u.DisplayName()},
		"slots":   nonNil(slots),
	})
}

func (h *Handler) TeacherCalendar(c *ginext.Context) {
	now := h.now()
	u, slots, err := h.svc.Slots.ListTeacherSlots(c.Request.Context(), c.Param("username"), now.Add(-24*time.Hour))
	if err != nil {
		h.fail(c, err, "failed to build teacher calendar")
		return
	}
	var buf bytes.Buffer
	feed := calendar.Feed{Teacher: u.DisplayName(), BaseURL: h.baseURL, Slots: slots, Stamp: now}
	if err := feed.Encode(&buf); err != nil {
		h.fail(c, err, "failed to encode teacher calendar")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s.ics"`, u.Username))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

func (h *Handler) CreateSlot(c *ginext.Context) {
	var req dto.CreateSlotRequest
	if !h.bind(c, &req) {
		return
	}
	v, err := h.svc.Slots.CreateSlot(c.Request.Context(), middleware.ActorFrom(c), req)
	if err != nil {
		h.fail(c, err, "failed to create slot")
		return
	}
	dto.SuccessCreatedResponse(c, v)
}

func (h *Handler) UpdateSlot(c *ginext.Context) {
	var req dto.UpdateSlotRequest
	if !h.bind(c, &req) {
		return
	}
	v, err := h.svc.Slots.UpdateSlot(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"), req)
	if err != nil {
		h.fail(c, err, "failed to update slot")
		return
	}
	dto.SuccessResponse(c, v)
}

func (h *Handler) DeleteSlot(c *ginext.Context) {
	if err := h.svc.Slots.DeleteSlot(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		h.fail(c, err, "failed to delete slot")
		return
	}
	dto.SuccessResponse(c, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) SlotSignups(c *ginext.Context) {
	signups, err := h.svc.Slots.ListSlotSignups(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		h.fail(c, err, "failed to list signups")
		return
	}
	dto.SuccessResponse(c, nonNil(signups))
}

func (h *Handler) DeleteSignup(c *ginext.Context) {
	if err := h.svc.Cancellations.CancelByID(c.Request.Context(), middleware.ActorFrom(c), c.Param("id")); err != nil {
		h.fail(c, err, "failed to delete signup")
		return
	}
	dto.SuccessResponse(c, gin.H{"deleted": c.Param("id")})
}

func (h *Handler) RunReminders(c *ginext.Context) {
	res, err := h.svc.Reminders.RunSweep(c.Request.Context(), h.now())
	if err != nil {
		h.fail(c, err, "reminder sweep failed")
		return
	}
	dto.SuccessResponse(c, res)
}

func (h *Handler) bind(c *ginext.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.log.Debug().Err(err).Msg("failed to parse request body")
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return false
	}
	if verr := validator.Validate(c.Request.Context(), req); verr != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, verr.Error())
		return false
	}
	return true
}

// token answers 404 for malformed tokens, same as unknown ones.
func (h *Handler) token(c *ginext.Context) (string, bool) {
	var p dto.TokenParam
	if err := c.ShouldBindUri(&p); err != nil || validator.Validate(c.Request.Context(), p) != nil {
		dto.SignupNotFoundError(c)
		return "", false
	}
	return p.Token, true
}

func (h *Handler) fromQuery(c *ginext.Context) (time.Time, bool) {
	raw := c.Query("from")
	if raw == "" {
		return time.Time{}, true
	}
	from, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		dto.FieldBadFormatError(c, "from")
		return time.Time{}, false
	}
	return from, true
}

// fail maps service and repository errors onto the response envelope.
func (h *Handler) fail(c *ginext.Context, err error, msg string) {
	var capErr *service.CapacityError
	var occErr *service.OccupancyError
	var valErr *service.ValidationError
	switch {
	case errors.As(err, &capErr):
		dto.NotEnoughSpotsError(c, fmt.Sprintf("Not enough spots available. Only %d spot(s) remaining.", capErr.Remaining))
	case errors.As(err, &occErr):
		dto.NotEnoughSpotsError(c, fmt.Sprintf("Capacity cannot go below the %d spot(s) already taken.", occErr.Occupied))
	case errors.As(err, &valErr):
		dto.BadResponseError(c, dto.FieldIncorrect, valErr.Error())
	case errors.Is(err, service.ErrForbidden):
		dto.ForbiddenError(c)
	case errors.Is(err, repo.ErrSlotNotFound):
		dto.SlotNotFoundError(c)
	case errors.Is(err, repo.ErrSignupNotFound):
		dto.SignupNotFoundError(c)
	case errors.Is(err, repo.ErrUserNotFound):
		dto.TeacherNotFoundError(c)
	default:
		h.log.Error().Err(err).Msg(msg)
		dto.InternalServerError(c)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
