package team

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseState_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	state := &PhaseState{
		SandboxPath:         dir,
		BranchName:          "cruise/feature-x",
		PRURL:               "https://github.com/org/repo/pull/7",
		PRNumber:            7,
		Phase:               "building",
		CurrentReviewDomain: "Security",
		LastActivity:        "2026-08-01T10:00:00Z",
		BackoffIntervalSecs: 20,
		PendingCommentIDs:   []uint64{123, 456},
		CompletedRounds:     2,
	}
	require.NoError(t, state.Save(dir))

	loaded, err := LoadPhaseState(dir)
	require.NoError(t, err)
	assert.Equal(t, state, loaded)
}

func TestPhaseState_LoadMissingFile(t *testing.T) {
	_, err := LoadPhaseState(t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPhaseState_SaveCreatesStateDir(t *testing.T) {
	dir := t.TempDir()
	state := &PhaseState{SandboxPath: dir, BranchName: "b", Phase: "planning", LastActivity: "2026-08-01T10:00:00Z"}
	require.NoError(t, state.Save(dir))

	_, err := os.Stat(StateFilePath(dir))
	assert.NoError(t, err)
}
