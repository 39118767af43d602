package device

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/metrics"
	"github.com/dokzlo13/relayd/internal/schedule"
)

// ErrNoDeviceURL is returned when no device base URL is configured.
var ErrNoDeviceURL = errors.New("device url not configured")

// Outcome is the result of one device step.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"   // step not requested
	OutcomeUnchanged Outcome = "unchanged" // relay already in desired state
	OutcomeToggled   Outcome = "toggled"   // relay toggled
	OutcomeSent      Outcome = "sent"      // strip command delivered
	OutcomeFailed    Outcome = "failed"
)

// Command is what to do to the device, independent of where it came from.
type Command struct {
	Action     schedule.Action `json:"action"`
	Relay      bool            `json:"relay"`
	Strip      bool            `json:"strip"`
	Brightness int             `json:"brightness"`
	Color      string          `json:"color"`
}

// CommandFor derives the device command of a schedule.
func CommandFor(s schedule.Schedule) Command {
	return Command{
		Action:     s.Action,
		Relay:      s.Relay,
		Strip:      s.Strip,
		Brightness: s.Brightness,
		Color:      s.Color,
	}
}

// StepResult reports the outcome of one step.
type StepResult struct {
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Result reports both steps of an Apply call.
type Result struct {
	Relay StepResult `json:"relay"`
	Strip StepResult `json:"strip"`
}

// OK reports whether no step failed.
func (r Result) OK() bool {
	return r.Relay.Outcome != OutcomeFailed && r.Strip.Outcome != OutcomeFailed
}

// Transport is the device protocol used by the Controller.
type Transport interface {
	RelayStatus(ctx context.Context, baseURL string) (bool, error)
	ToggleRelay(ctx context.Context, baseURL string) error
	SetStrip(ctx context.Context, baseURL string, p StripParams) error
}

// Controller applies commands to the device. The relay and strip steps are
// isolated: a failure in one is logged and never skips the other.
type Controller struct {
	transport Transport
	metrics   *metrics.Recorder
}

// NewController creates a controller over transport.
func NewController(transport Transport, rec *metrics.Recorder) *Controller {
	return &Controller{
		transport: transport,
		metrics:   rec,
	}
}

// Apply runs the relay step then the strip step. It never returns an error;
// failures are logged and reported in the Result.
func (c *Controller) Apply(ctx context.Context, cmd Command, baseURL string) Result {
	res := Result{
		Relay: StepResult{Outcome: OutcomeSkipped},
		Strip: StepResult{Outcome: OutcomeSkipped},
	}

	if cmd.Relay {
		res.Relay = c.applyRelay(ctx, baseURL, cmd.Action == schedule.ActionOn)
		c.metrics.IncDeviceStep("relay", string(res.Relay.Outcome))
	}

	if cmd.Strip {
		res.Strip = c.applyStrip(ctx, baseURL, cmd)
		c.metrics.IncDeviceStep("strip", string(res.Strip.Outcome))
	}

	return res
}

// applyRelay toggles the relay only when its state differs from desired,
// since the device exposes a toggle and not a direct set.
func (c *Controller) applyRelay(ctx context.Context, baseURL string, turnOn bool) StepResult {
	desired := stateName(turnOn)

	current, err := c.transport.RelayStatus(ctx, baseURL)
	if err != nil {
		log.Error().Err(err).Str("url", baseURL).Msg("Relay control failed")
		return StepResult{Outcome: OutcomeFailed, Error: err.Error()}
	}

	if current == turnOn {
		log.Info().Str("state", desired).Msg("Relay already in desired state")
		return StepResult{Outcome: OutcomeUnchanged}
	}

	if err := c.transport.ToggleRelay(ctx, baseURL); err != nil {
		log.Error().Err(err).Str("url", baseURL).Msg("Relay control failed")
		return StepResult{Outcome: OutcomeFailed, Error: err.Error()}
	}

	log.Info().Str("state", desired).Msg("Relay toggled")
	return StepResult{Outcome: OutcomeToggled}
}

func (c *Controller) applyStrip(ctx context.Context, baseURL string, cmd Command) StepResult {
	params := StripParams{On: false}

	if cmd.Action == schedule.ActionOn {
		rgb, err := schedule.ParseColor(cmd.Color)
		if err != nil {
			log.Error().Err(err).Msg("Strip control failed")
			return StepResult{Outcome: OutcomeFailed, Error: err.Error()}
		}
		params = StripParams{On: true, Brightness: cmd.Brightness, R: rgb.R, G: rgb.G, B: rgb.B}
	}

	if err := c.transport.SetStrip(ctx, baseURL, params); err != nil {
		log.Error().Err(err).Str("url", baseURL).Msg("Strip control failed")
		return StepResult{Outcome: OutcomeFailed, Error: err.Error()}
	}

	log.Info().Str("params", params.Query().Encode()).Msg("Strip set")
	return StepResult{Outcome: OutcomeSent}
}

func stateName(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
