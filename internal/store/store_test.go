package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animagen/internal/pipeline"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(id string, createdAt time.Time) *pipeline.Result {
	return &pipeline.Result{
		Request: pipeline.Request{
			ID:        id,
			Prompt:    "animate the pythagorean theorem",
			CreatedAt: createdAt,
		},
		Storyboard: "STEP 1: triangle at center",
		Status:     pipeline.StatusSucceeded,
		VideoPath:  "videos/" + id + ".mp4",
		Attempts: []pipeline.Attempt{
			{
				Seq:         1,
				Code:        "broken code",
				SceneName:   "Pythagoras",
				Outcome:     pipeline.OutcomeFailure,
				ErrorDetail: "NameError: Squar",
				Duration:    1200 * time.Millisecond,
			},
			{
				Seq:       2,
				Code:      "fixed code",
				SceneName: "Pythagoras",
				Outcome:   pipeline.OutcomeSuccess,
				Duration:  2500 * time.Millisecond,
			},
		},
	}
}

func TestSaveAndGetGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	result := sampleResult("gen-1", created)
	require.NoError(t, s.SaveResult(ctx, result))

	gen, err := s.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)

	assert.Equal(t, "gen-1", gen.ID)
	assert.Equal(t, result.Request.Prompt, gen.Prompt)
	assert.Equal(t, result.Storyboard, gen.Storyboard)
	assert.Equal(t, pipeline.StatusSucceeded, gen.Status)
	assert.Equal(t, result.VideoPath, gen.VideoPath)
	assert.True(t, gen.CreatedAt.Equal(created))

	if diff := cmp.Diff(result.Attempts, gen.Attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestGetGenerationNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetGeneration(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveResultIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	result := sampleResult("gen-1", time.Now().UTC())
	require.NoError(t, s.SaveResult(ctx, result))

	// Re-saving with fewer attempts replaces the old rows.
	result.Attempts = result.Attempts[:1]
	result.Status = pipeline.StatusFailedExhausted
	result.VideoPath = ""
	require.NoError(t, s.SaveResult(ctx, result))

	gen, err := s.GetGeneration(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusFailedExhausted, gen.Status)
	assert.Len(t, gen.Attempts, 1)
}

func TestListGenerationsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"gen-a", "gen-b", "gen-c"} {
		require.NoError(t, s.SaveResult(ctx, sampleResult(id, base.Add(time.Duration(i)*time.Minute))))
	}

	generations, err := s.ListGenerations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, generations, 2)
	assert.Equal(t, "gen-c", generations[0].ID)
	assert.Equal(t, "gen-b", generations[1].ID)

	// Listing omits attempt bodies.
	assert.Empty(t, generations[0].Attempts)
}

func TestListGenerationsEmpty(t *testing.T) {
	s := openTestStore(t)
	generations, err := s.ListGenerations(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, generations)
}
