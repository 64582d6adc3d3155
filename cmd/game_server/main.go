// game_server runs headless flappy episodes with a scripted policy and
// reports per-episode stats. Useful for checking the simulation and reward
// shaping without a trainer attached.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/agent"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/config"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/experience"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/game/events"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/game/events/subscribers"
)

var (
	flagConfig   string
	flagEpisodes int
	flagSeed     int64
	flagPolicy   string
	flagMaxSteps int
	flagASCII    bool
	flagColor    bool
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "game_server",
	Short: "Run headless flappy episodes with a scripted policy",
	Long: `Runs episodes back to back without a window and prints a stats table.

Policies:
  gap_follower - flap when below the next gap and falling
  random       - flap at random
  always_flap  - flap every frame (always_none never flaps)

Examples:
  game_server --episodes 10 --seed 42
  game_server --policy random --ascii --max-steps 200`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "Path to config file")
	rootCmd.Flags().IntVar(&flagEpisodes, "episodes", -1, "Number of episodes (-1 to use config default)")
	rootCmd.Flags().Int64Var(&flagSeed, "seed", -1, "Base seed; episode i uses seed+i (-1 to use config, which may be unseeded)")
	rootCmd.Flags().StringVar(&flagPolicy, "policy", "", "Policy name (empty to use config default)")
	rootCmd.Flags().IntVar(&flagMaxSteps, "max-steps", -1, "Truncate episodes after this many steps (-1 to use config default, 0 for no limit)")
	rootCmd.Flags().BoolVar(&flagASCII, "ascii", false, "Print an ASCII frame every step")
	rootCmd.Flags().BoolVar(&flagColor, "color", false, "Colorize ASCII frames")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "", "Log level (empty to use config default)")
}

func run(cmd *cobra.Command, args []string) error {
	if err := config.Init(flagConfig); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	cfg := config.Get()
	gs := cfg.Server.GameServer

	if flagEpisodes != -1 {
		gs.Episodes = flagEpisodes
	}
	if flagSeed != -1 {
		gs.Seed = flagSeed
	}
	if flagPolicy != "" {
		gs.Policy = flagPolicy
	}
	if flagMaxSteps != -1 {
		gs.MaxSteps = flagMaxSteps
	}
	if flagASCII {
		gs.ASCII = true
	}
	if flagLogLevel != "" {
		gs.LogLevel = flagLogLevel
	}
	if gs.Episodes <= 0 {
		return fmt.Errorf("episodes must be positive, got %d", gs.Episodes)
	}

	setupLogging(gs.LogLevel)

	var seed *int64
	rngSeed := time.Now().UnixNano()
	if gs.Seed >= 0 {
		seed = &gs.Seed
		rngSeed = gs.Seed
	}
	policy := agent.New(gs.Policy, rand.New(rand.NewSource(rngSeed)))

	bus := events.NewEventBusWithLogger(log.Logger)
	if cfg.Development.EventLogging {
		level := zerolog.InfoLevel
		if cfg.Development.EventLoggingDebug {
			level = zerolog.DebugLevel
		}
		bus.Subscribe(subscribers.NewLoggerSubscriber("rollout-events", log.Logger, level))
	}

	rc := rolloutConfig{
		Episodes: gs.Episodes,
		MaxSteps: gs.MaxSteps,
		Seed:     seed,
		Policy:   policy,
		Rewards: experience.RewardConfig{
			Survival:    float32(cfg.RL.Rewards.Survival),
			PassBonus:   float32(cfg.RL.Rewards.PassBonus),
			Termination: float32(cfg.RL.Rewards.Termination),
		},
		Color:    flagColor,
		EventBus: bus,
		Logger:   log.Logger,
	}
	if gs.ASCII {
		rc.Frames = os.Stdout
	}

	log.Info().
		Int("episodes", gs.Episodes).
		Str("policy", policy.Name()).
		Bool("seeded", seed != nil).
		Int("max_steps", gs.MaxSteps).
		Msg("Starting rollouts")

	summaries, err := runRollouts(rc)
	writeReport(os.Stdout, policy.Name(), summaries)
	return err
}

func setupLogging(level string) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if os.Getenv("APP_ENV") == "production" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
	}
}
