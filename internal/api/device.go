package api

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/schedule"
)

// DefaultHistoryLimit is used when /history has no limit parameter.
const DefaultHistoryLimit = 50

const maxHistoryLimit = 1000

// commandRequest is the optional body of a manual command.
type commandRequest struct {
	Relay      *schedule.Flag `json:"relay"`
	Strip      *schedule.Flag `json:"strip"`
	Brightness *int           `json:"brightness"`
	Color      *string        `json:"color"`
}

// DeviceModule serves device config, manual commands and the run history.
func DeviceModule(b Backend) Module {
	return ModuleFunc(func(g *gin.RouterGroup) {
		g.GET("/config", Resolve(http.StatusOK, getConfig(b)))
		g.POST("/config", Resolve(http.StatusOK, saveConfig(b)))
		g.POST("/test/:action", Resolve(http.StatusOK, sendCommand(b)))
		g.GET("/history", Resolve(http.StatusOK, history(b)))
	})
}

func getConfig(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		values, err := b.Config(ctx.Request.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to read config")
			return nil, internal("failed to read config")
		}
		return values, nil
	}
}

func saveConfig(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		var values map[string]string
		if err := ctx.ShouldBindJSON(&values); err != nil {
			return nil, badRequest("config must be an object of string values")
		}
		if len(values) == 0 {
			return nil, badRequest("no config values given")
		}
		if err := b.SaveConfig(ctx.Request.Context(), values); err != nil {
			log.Error().Err(err).Msg("Failed to save config")
			return nil, internal("failed to save config")
		}
		return values, nil
	}
}

func sendCommand(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		action := schedule.Action(ctx.Param("action"))
		if !action.Valid() {
			return nil, badRequest("action must be on or off")
		}

		var req commandRequest
		if ctx.Request.ContentLength != 0 {
			if err := ctx.ShouldBindJSON(&req); err != nil {
				return nil, badRequest(err.Error())
			}
		}

		cmd := device.Command{
			Action:     action,
			Relay:      true,
			Strip:      true,
			Brightness: schedule.DefaultBrightness,
			Color:      schedule.DefaultColor,
		}
		if req.Relay != nil {
			cmd.Relay = bool(*req.Relay)
		}
		if req.Strip != nil {
			cmd.Strip = bool(*req.Strip)
		}
		if req.Brightness != nil {
			if *req.Brightness < 0 || *req.Brightness > 255 {
				return nil, badRequest("brightness must be within [0,255]")
			}
			cmd.Brightness = *req.Brightness
		}
		if req.Color != nil {
			if _, err := schedule.ParseColor(*req.Color); err != nil {
				return nil, badRequest(err.Error())
			}
			cmd.Color = *req.Color
		}

		res, err := b.SendCommand(ctx.Request.Context(), cmd)
		if errors.Is(err, device.ErrNoDeviceURL) {
			return nil, badRequest("device url not configured")
		}
		if err != nil {
			log.Error().Err(err).Msg("Manual command failed")
			return nil, internal("failed to send command")
		}
		return gin.H{"action": action, "ok": res.OK(), "result": res}, nil
	}
}

func history(b Backend) HandlerFunc {
	return func(ctx *gin.Context) (any, *Error) {
		limit := DefaultHistoryLimit
		if v := ctx.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, badRequest("limit must be a positive integer")
			}
			limit = min(n, maxHistoryLimit)
		}

		var scheduleID int64
		if v := ctx.Query("schedule_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				return nil, badRequest("invalid schedule id")
			}
			scheduleID = id
		}

		entries, err := b.History(ctx.Request.Context(), scheduleID, limit)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read history")
			return nil, internal("failed to read history")
		}
		if entries == nil {
			entries = []*ledger.Entry{}
		}
		return entries, nil
	}
}
