package api

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/schedule"
	"github.com/dokzlo13/relayd/internal/store"
)

// ScheduleModule serves schedule CRUD and the live job table.
func ScheduleModule(b Backend) Module {
	return ModuleFunc(func(g *gin.RouterGroup) {
		g.GET("/schedules", Resolve(http.StatusOK, listSchedules(b)))
		g.POST("/schedules", Resolve(http.StatusCreated, createSchedule(b)))
		g.GET("/schedules/:id", Resolve(http.StatusOK, getSchedule(b)))
		g.PUT("/schedules/:id", Resolve(http.StatusOK, updateSchedule(b)))
		g.DELETE("/schedules/:id", Resolve(http.StatusNoContent, deleteSchedule(b)))
		g.GET("/jobs", Resolve(http.StatusOK, listJobs(b)))
	})
}

func listSchedules(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		list, err := b.List(ctx.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to list schedules")
			return nil, internal("failed to list schedules")
		}
		if list == nil {
			list = []schedule.Schedule{}
		}
		return list, nil
	}
}

func getSchedule(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		id, apiErr := scheduleID(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		rec, err := b.Get(ctx.Request.Context(), id)
		if err != nil {
			return nil, scheduleError(err, id)
		}
		return rec, nil
	}
}

func createSchedule(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		var f schedule.Fields
		if err := ctx.ShouldBindJSON(&f); err != nil {
			return nil, badRequest(err.Error())
		}
		rec, err := b.Create(ctx.Request.Context(), f)
		if err != nil {
			return nil, scheduleError(err, 0)
		}
		return rec, nil
	}
}

func updateSchedule(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		id, apiErr := scheduleID(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		var f schedule.Fields
		if err := ctx.ShouldBindJSON(&f); err != nil {
			return nil, badRequest(err.Error())
		}
		rec, err := b.Update(ctx.Request.Context(), id, f)
		if err != nil {
			return nil, scheduleError(err, id)
		}
		return rec, nil
	}
}

func deleteSchedule(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		id, apiErr := scheduleID(ctx)
		if apiErr != nil {
			return nil, apiErr
		}
		if err := b.Delete(ctx.Request.Context(), id); err != nil {
			return nil, scheduleError(err, id)
		}
		return nil, nil
	}
}

func listJobs(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		return b.Jobs(), nil
	}
}

func scheduleID(ctx *gin.Context) (int64, *Error) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid schedule id")
	}
	return id, nil
}

// scheduleError maps backend errors to HTTP errors.
func scheduleError(err error, id int64) *Error {
	var verr *schedule.ValidationError
	switch {
	case errors.As(err, &verr):
		return badRequest(verr.Error())
	case errors.Is(err, store.ErrNotFound):
		return notFound("schedule not found")
	default:
		log.Error().Err(err).Int64("schedule_id", id).Msg("Schedule request failed")
		return internal("internal error")
	}
}
