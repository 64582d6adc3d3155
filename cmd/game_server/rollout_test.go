package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/agent"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/experience"
	"github.com/mitchelldurbincs/FlappyReinforcementLearning/internal/testutil"
)

func TestRunRolloutsIdlePolicy(t *testing.T) {
	summaries, err := runRollouts(rolloutConfig{
		Episodes: 3,
		Seed:     testutil.Seed(7),
		Policy:   agent.NewRandomPolicy(testutil.NewTestRNG(1), -1),
		Rewards:  experience.DefaultRewardConfig(),
		Logger:   testutil.NopLogger(),
	})
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	for i, s := range summaries {
		assert.Equal(t, i+1, s.Episode)
		assert.False(t, s.Truncated)
		assert.Zero(t, s.Stats.Flaps)
		assert.Zero(t, s.Stats.Score)
		// Falls to the ground; one survival reward per frame before the crash
		assert.Equal(t, 27, s.Stats.Frames)
		assert.InDelta(t, 26*0.1-1.0, s.Return, 1e-4)
	}
}

func TestRunRolloutsTruncates(t *testing.T) {
	summaries, err := runRollouts(rolloutConfig{
		Episodes: 1,
		MaxSteps: 50,
		Seed:     testutil.Seed(11),
		Policy:   agent.NewGapFollower(),
		Rewards:  experience.DefaultRewardConfig(),
		Logger:   testutil.NopLogger(),
	})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Truncated)
	assert.Equal(t, 50, summaries[0].Stats.Frames)
}

func TestRunRolloutsWritesFrames(t *testing.T) {
	var frames bytes.Buffer
	_, err := runRollouts(rolloutConfig{
		Episodes: 1,
		MaxSteps: 3,
		Seed:     testutil.Seed(1),
		Policy:   agent.NewGapFollower(),
		Rewards:  experience.DefaultRewardConfig(),
		Frames:   &frames,
		Logger:   testutil.NopLogger(),
	})
	require.NoError(t, err)

	// One frame for the reset plus one per step
	assert.Equal(t, 4, strings.Count(frames.String(), "  score 0  "))
	assert.Contains(t, frames.String(), "frame 3  score 0")
}

func TestSeededRolloutsRepeat(t *testing.T) {
	run := func() []episodeSummary {
		s, err := runRollouts(rolloutConfig{
			Episodes: 2,
			MaxSteps: 400,
			Seed:     testutil.Seed(5),
			Policy:   agent.NewRandomPolicy(testutil.NewTestRNG(9), 0.1),
			Rewards:  experience.DefaultRewardConfig(),
			Logger:   testutil.NopLogger(),
		})
		require.NoError(t, err)
		return s
	}
	assert.Equal(t, run(), run())
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	summaries := []episodeSummary{{Episode: 1}, {Episode: 2}}
	summaries[0].Stats.Score = 2
	summaries[1].Stats.Score = 4
	summaries[1].Stats.Frames = 8
	summaries[1].Stats.Flaps = 2

	writeReport(&buf, "gap_follower", summaries)

	out := buf.String()
	lines := strings.Split(out, "\n")
	assert.Contains(t, lines[1], "flap_rate")
	assert.Contains(t, lines[2], "    0.000 ", "zero frames report a zero rate")
	assert.Contains(t, lines[3], "    0.250 ")
	assert.Contains(t, out, "policy: gap_follower")
	assert.Contains(t, out, "mean score: 3.00")
	assert.Equal(t, 5, strings.Count(out, "\n"))
}
