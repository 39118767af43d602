package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/app"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/schedule"
)

// ServeCmd runs the daemon until SIGINT or SIGTERM.
type ServeCmd struct{}

func (s *ServeCmd) Run(root *CLI) error {
	log.Info().Str("config", root.Config).Msg("Starting relayd")

	application, err := app.New(root.cfg)
	if err != nil {
		return err
	}

	ctx := app.SignalContext()
	if err := application.Start(ctx); err != nil {
		application.Stop()
		return err
	}

	application.Wait()
	return application.Stop()
}

// JobsCmd prints the jobs the daemon would register on start.
type JobsCmd struct{}

func (j *JobsCmd) Run(root *CLI) error {
	loc, err := root.cfg.Scheduler.Location()
	if err != nil {
		return err
	}

	svc, err := app.NewServices(root.cfg)
	if err != nil {
		return err
	}
	defer stopServices(svc, root)

	if err := svc.Jobs.LoadAll(context.Background()); err != nil {
		return err
	}
	fmt.Println(svc.Engine.FormatJobs(loc))
	return nil
}

// SendCmd sends one command to the device using the stored device URL.
type SendCmd struct {
	Action     string `arg:"" enum:"on,off" help:"Desired state (on or off)"`
	Relay      bool   `help:"Drive the relay" default:"true" negatable:""`
	Strip      bool   `help:"Drive the light strip" default:"true" negatable:""`
	Brightness int    `help:"Strip brightness (0-255)" default:"255"`
	Color      string `help:"Strip color as hex RGB" default:"#ffffff"`
}

// Validate checks the strip parameters before anything is opened.
func (s *SendCmd) Validate() error {
	if s.Brightness < 0 || s.Brightness > 255 {
		return errors.Newf("brightness must be within [0,255], got %d", s.Brightness)
	}
	if _, err := schedule.ParseColor(s.Color); err != nil {
		return err
	}
	return nil
}

func (s *SendCmd) command() device.Command {
	return device.Command{
		Action:     schedule.Action(s.Action),
		Relay:      s.Relay,
		Strip:      s.Strip,
		Brightness: s.Brightness,
		Color:      s.Color,
	}
}

func (s *SendCmd) Run(root *CLI) error {
	svc, err := app.NewServices(root.cfg)
	if err != nil {
		return err
	}
	defer stopServices(svc, root)

	res, err := svc.Schedule.SendCommand(context.Background(), s.command())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return err
	}
	if !res.OK() {
		return errors.New("device command failed")
	}
	return nil
}

func stopServices(svc *app.Services, root *CLI) {
	timeout := root.cfg.ShutdownTimeout.Duration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	svc.Stop(ctx)
}
