package dto

import (
	"net/http"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	SlotNotFound      = "SLOT_NOT_FOUND"
	SignupNotFound    = "SIGNUP_NOT_FOUND"
	TeacherNotFound   = "TEACHER_NOT_FOUND"
	NotEnoughSpots    = "NOT_ENOUGH_SPOTS"
	Forbidden         = "FORBIDDEN"
	Unauthorized      = "UNAUTHORIZED"
	TooManyRequests   = "TOO_MANY_REQUESTS"
	MaintenanceMode   = "MAINTENANCE"
	MaintenanceNotice = "The signup system is down for maintenance. Please check back soon."
)

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func ErrorResponse(c *ginext.Context, status int, code, desc string) {
	c.AbortWithStatusJSON(status, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func BadResponseError(c *ginext.Context, code, desc string) {
	ErrorResponse(c, http.StatusBadRequest, code, desc)
}

func InternalServerError(c *ginext.Context) {
	ErrorResponse(c, http.StatusInternalServerError, ServiceUnavailable, InternalError)
}

func FieldBadFormatError(c *ginext.Context, fieldName string) {
	BadResponseError(c, FieldBadFormat, "Field '"+fieldName+"' has bad format")
}

func SlotNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, SlotNotFound, "Slot not found")
}

func SignupNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, SignupNotFound, "Signup not found. The link may be invalid or already used.")
}

func TeacherNotFoundError(c *ginext.Context) {
	ErrorResponse(c, http.StatusNotFound, TeacherNotFound, "Teacher not found")
}

func NotEnoughSpotsError(c *ginext.Context, desc string) {
	ErrorResponse(c, http.StatusConflict, NotEnoughSpots, desc)
}

// ForbiddenError does not say whether the resource exists.
func ForbiddenError(c *ginext.Context) {
	ErrorResponse(c, http.StatusForbidden, Forbidden, "You are not allowed to perform this action")
}

func UnauthorizedError(c *ginext.Context) {
	ErrorResponse(c, http.StatusUnauthorized, Unauthorized, "Authentication required")
}

func TooManyRequestsError(c *ginext.Context) {
	ErrorResponse(c, http.StatusTooManyRequests, TooManyRequests, "Too many requests. Please slow down.")
}

func MaintenanceError(c *ginext.Context) {
	ErrorResponse(c, http.StatusServiceUnavailable, MaintenanceMode, MaintenanceNotice)
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(http.StatusCreated, Response{
		Status: "ok",
		Data:   data,
	})
}
