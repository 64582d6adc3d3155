package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/agent"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/env"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/experience"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/game"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/game/events"
)

// rolloutConfig drives runRollouts
type rolloutConfig struct {
	Episodes int
	// MaxSteps truncates an episode; 0 lets it run until the bird dies
	MaxSteps int
	// Seed, when set, seeds episode i with Seed+i
	Seed     *int64
	Policy   agent.Policy
	Rewards  experience.RewardConfig
	Frames   io.Writer // ASCII frames are written here when non-nil
	Color    bool
	EventBus *events.EventBus
	Logger   zerolog.Logger
}

// episodeSummary is one line of the rollout report
type episodeSummary struct {
	Episode   int
	Stats     game.EpisodeStats
	Return    float64
	Truncated bool
}

// asciiRenderer prints every snapshot as a text frame
type asciiRenderer struct {
	out   io.Writer
	color bool
}

func (r asciiRenderer) Render(s game.Snapshot) {
	fmt.Fprintln(r.out, game.RenderASCII(s, r.color))
}

func runRollouts(cfg rolloutConfig) ([]episodeSummary, error) {
	opts := env.Options{
		Seed:            cfg.Seed,
		Rewards:         &cfg.Rewards,
		MaxEpisodeSteps: cfg.MaxSteps,
		Logger:          cfg.Logger,
		EventBus:        cfg.EventBus,
	}
	if cfg.Frames != nil {
		opts.Renderer = asciiRenderer{out: cfg.Frames, color: cfg.Color}
	}
	e := env.New(opts)
	defer e.Close()

	summaries := make([]episodeSummary, 0, cfg.Episodes)
	for i := 0; i < cfg.Episodes; i++ {
		var seed *int64
		if cfg.Seed != nil {
			s := *cfg.Seed + int64(i)
			seed = &s
		}

		obs, _, err := e.Reset(seed)
		if err != nil {
			return summaries, fmt.Errorf("episode %d: reset: %w", i+1, err)
		}

		sum := episodeSummary{Episode: i + 1}
		for {
			res, err := e.Step(int(cfg.Policy.Act(obs)))
			if err != nil {
				return summaries, fmt.Errorf("episode %d: step: %w", i+1, err)
			}
			sum.Return += float64(res.Reward)
			obs = res.Observation
			if res.Done() {
				sum.Truncated = res.Truncated && !res.Terminated
				break
			}
		}
		sum.Stats = e.Stats()
		summaries = append(summaries, sum)

		cfg.Logger.Info().
			Int("episode", sum.Episode).
			Object("stats", sum.Stats).
			Float64("return", sum.Return).
			Bool("truncated", sum.Truncated).
			Msg("Episode finished")
	}
	return summaries, nil
}

// writeReport prints a per-episode table and the mean score
func writeReport(w io.Writer, policy string, summaries []episodeSummary) {
	fmt.Fprintf(w, "policy: %s\n", policy)
	fmt.Fprintf(w, "%-8s %6s %7s %6s %9s %7s %9s\n", "episode", "score", "frames", "flaps", "flap_rate", "return", "truncated")

	total := 0
	for _, s := range summaries {
		fmt.Fprintf(w, "%-8d %6d %7d %6d %9.3f %7.2f %9t\n",
			s.Episode, s.Stats.Score, s.Stats.Frames, s.Stats.Flaps, s.Stats.FlapRate(), s.Return, s.Truncated)
		total += s.Stats.Score
	}
	if len(summaries) > 0 {
		fmt.Fprintf(w, "mean score: %.2f\n", float64(total)/float64(len(summaries)))
	}
}
