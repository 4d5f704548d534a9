package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"github.com/Patrick-Flanagan-13/parent-invite-app/cmd/middleware"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/api/handlers"
	"github.com/Patrick-Flanagan-13/parent-invite-app/internal/repo"
)

type Routers struct {
	Handler     *handlers.Handler
	Repo        repo.Repository
	Log         *zerolog.Logger
	Actor       middleware.ActorConfig
	CronSecret  string
	Maintenance bool
	// RateLimit guards the anonymous signup and cancellation routes. Nil disables it.
	RateLimit gin.HandlerFunc
	// GinMode is passed to ginext.New; "release" when empty.
	GinMode string
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.GinMode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())
	app.Use(middleware.Maintenance(r.Maintenance))

	h := r.Handler
	limited := []gin.HandlerFunc{}
	if r.RateLimit != nil {
		limited = append(limited, r.RateLimit)
	}

	app.GET("/health", h.Health)

	apiGroup := app.Group("/v1")
	apiGroup.GET("/slots", h.ListSlots)
	apiGroup.GET("/slots/:id", h.GetSlot)
	apiGroup.POST("/slots/:id/signups", append(limited, h.Signup)...)
	apiGroup.GET("/cancel/:token", append(limited, h.ResolveCancellation)...)
	apiGroup.POST("/cancel/:token", append(limited, h.Cancel)...)
	apiGroup.GET("/teachers/:username/slots", h.TeacherSlots)
	apiGroup.GET("/teachers/:username/calendar.ics", h.TeacherCalendar)

	admin := apiGroup.Group("/admin", middleware.RequireActor(r.Repo, r.Actor, r.Log))
	admin.POST("/slots", h.CreateSlot)
	admin.PATCH("/slots/:id", h.UpdateSlot)
	admin.DELETE("/slots/:id", h.DeleteSlot)
	admin.GET("/slots/:id/signups", h.SlotSignups)
	admin.DELETE("/signups/:id", h.DeleteSignup)

	cron := apiGroup.Group("/cron", middleware.CronSecret(r.CronSecret))
	cron.GET("/reminders", h.RunReminders)
	cron.POST("/reminders", h.RunReminders)

	return app
}
