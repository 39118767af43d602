// Package api exposes schedules, device config and history over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/schedule"
	"github.com/dokzlo13/relayd/internal/scheduler"
)

// Backend is the application surface the handlers call into.
type Backend interface {
	List(ctx context.Context) ([]schedule.Schedule, error)
	Get(ctx context.Context, id int64) (*schedule.Schedule, error)
	Create(ctx context.Context, f schedule.Fields) (*schedule.Schedule, error)
	Update(ctx context.Context, id int64, f schedule.Fields) (*schedule.Schedule, error)
	Delete(ctx context.Context, id int64) error
	Jobs() []scheduler.JobInfo
	Config(ctx context.Context) (map[string]string, error)
	SaveConfig(ctx context.Context, values map[string]string) error
	SendCommand(ctx context.Context, cmd device.Command) (device.Result, error)
	History(ctx context.Context, scheduleID int64, limit int) ([]*ledger.Entry, error)
	Ready(ctx context.Context) error
}

// Error is a handler failure rendered as {"error": message}.
type Error struct {
	Code    int
	Message string
}

// HandlerFunc returns a response body or an Error.
type HandlerFunc func(ctx *gin.Context) (any, *Error)

// Resolve adapts a HandlerFunc to gin, answering with status on success.
// A nil body with http.StatusNoContent writes no body.
func Resolve(status int, h HandlerFunc) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		result, apiErr := h(ctx)
		if apiErr != nil {
			ctx.JSON(apiErr.Code, gin.H{"error": apiErr.Message})
			return
		}
		if status == http.StatusNoContent {
			ctx.Status(status)
			return
		}
		ctx.JSON(status, result)
	}
}

// Module attaches a group of endpoints to a router group.
type Module interface {
	Mount(g *gin.RouterGroup)
}

// ModuleFunc lets a function act as a Module.
type ModuleFunc func(g *gin.RouterGroup)

func (f ModuleFunc) Mount(g *gin.RouterGroup) { f(g) }

func badRequest(msg string) *Error {
	return &Error{Code: http.StatusBadRequest, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Code: http.StatusNotFound, Message: msg}
}

func internal(msg string) *Error {
	return &Error{Code: http.StatusInternalServerError, Message: msg}
}
