// ui_client plays flappy interactively in an ebiten window.
//
// Controls: Space, Up or left click to flap, R to restart after a crash,
// Escape to quit.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/config"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/game/events"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/game/events/subscribers"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/ui"
)

var (
	flagConfig   string
	flagSeed     int64
	flagAssets   string
	flagScale    float64
	flagPrecise  bool
	flagLogLevel string
	flagDebug    bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("UI client failed")
	}
}

var rootCmd = &cobra.Command{
	Use:   "ui_client",
	Short: "Play flappy in a window",
	Long: `Opens the interactive game.

Controls:
  Space/Up/Click - Flap
  R              - Restart (after game over)
  Esc            - Quit`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.Flags().Int64Var(&flagSeed, "seed", -1, "Pipe RNG seed for the first episode (-1 = random)")
	rootCmd.Flags().StringVar(&flagAssets, "assets", "", "Directory of PNG sprites (empty to use config, then procedural sprites)")
	rootCmd.Flags().Float64Var(&flagScale, "scale", 0, "Window scale factor (0 to use config default)")
	rootCmd.Flags().BoolVar(&flagPrecise, "precise-collision", false, "Use per-pixel sprite masks for collision")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (empty to use config default)")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "Show frame and velocity overlay")
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.Init(flagConfig); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	cfg := config.Get()
	uiCfg := cfg.UI

	if flagAssets != "" {
		uiCfg.AssetsDir = flagAssets
	}
	if flagScale > 0 {
		uiCfg.Window.Scale = flagScale
	}
	if flagPrecise {
		uiCfg.PreciseCollision = true
	}
	if flagLogLevel != "" {
		uiCfg.LogLevel = flagLogLevel
	}

	setupLogging(uiCfg.LogLevel)

	var seed *int64
	if flagSeed >= 0 {
		seed = &flagSeed
	}

	bus := events.NewEventBusWithLogger(log.Logger)
	if cfg.Development.EventLogging {
		level := zerolog.InfoLevel
		if cfg.Development.EventLoggingDebug {
			level = zerolog.DebugLevel
		}
		sub := subscribers.NewLoggerSubscriber("ui-events", log.Logger, level)
		sub.SetEventFilter([]string{
			events.TypeEpisodeStarted,
			events.TypeEpisodeEnded,
			events.TypeBirdDied,
			events.TypePipeCleared,
		})
		bus.Subscribe(sub)
	}

	game, err := ui.NewUIGame(ui.Options{
		UI:       uiCfg,
		Seed:     seed,
		Logger:   log.Logger,
		EventBus: bus,
		Debug:    flagDebug,
	})
	if err != nil {
		return err
	}

	log.Info().
		Int("tick_rate", uiCfg.TickRate).
		Float64("scale", uiCfg.Window.Scale).
		Msg("Starting UI client")

	if err := ui.Run(game, uiCfg); err != nil && !errors.Is(err, ebiten.Termination) {
		return err
	}

	stats := game.Engine().Stats()
	log.Info().Object("stats", stats).Int("episodes", game.Engine().Episodes()).Msg("Goodbye")
	return nil
}

func setupLogging(level string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
}
