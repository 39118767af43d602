package main

import (
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
)

// CLI is the command line of relayd.
type CLI struct {
	Config  string `short:"c" help:"Path to configuration file" default:"config.yaml" type:"path"`
	EnvFile string `name:"env-file" help:"Environment file loaded before the configuration" default:".env" type:"path"`

	Serve ServeCmd `cmd:"" default:"1" help:"Run the scheduling daemon"`
	Jobs  JobsCmd  `cmd:"" help:"Print the job table derived from stored schedules"`
	Send  SendCmd  `cmd:"" help:"Send a one-shot command to the device"`

	cfg *config.Config
}

// AfterApply loads the environment file and configuration, then sets up logging.
func (c *CLI) AfterApply() error {
	if err := godotenv.Load(c.EnvFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to load env file %s", c.EnvFile)
	}

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	c.cfg = cfg

	setupLogging(cfg.Log.Level, cfg.Log.JSON, cfg.Log.Colors)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("relayd"),
		kong.Description("Weekly relay and light strip scheduler for a remote HTTP device."),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		log.Fatal().Err(err).Str("command", ctx.Command()).Msg("Command failed")
	}
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
