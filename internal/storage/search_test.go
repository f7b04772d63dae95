package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GhostScientist/assay/internal/models"
)

func hitIDs(hits []models.SampleHit) []string {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
	}
	return ids
}

func TestSearchSamplesFollowsInsertsAndUpdates(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	run := createTestRun(t, st)

	paris, err := st.InsertSample(ctx, models.Sample{RunID: run.ID, Index: 0, InputJSON: `{"q":"capital of France"}`})
	require.NoError(t, err)
	_, err = st.InsertSample(ctx, models.Sample{RunID: run.ID, Index: 1, InputJSON: `{"q":"capital of Peru"}`})
	require.NoError(t, err)

	hits, err := st.SearchSamples(ctx, "France", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{paris.ID}, hitIDs(hits))
	assert.Equal(t, "capitals", hits[0].EvalID)
	assert.Equal(t, "gpt-4o", hits[0].ModelID)

	hits, err = st.SearchSamples(ctx, "capital", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// Output text becomes searchable once the result is recorded.
	hits, err = st.SearchSamples(ctx, "Lutetia", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = st.UpdateSampleResult(ctx, paris.ID, models.SampleResult{OutputJSON: strp(`{"a":"Paris, once Lutetia"}`)})
	require.NoError(t, err)

	hits, err = st.SearchSamples(ctx, "Lutetia", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{paris.ID}, hitIDs(hits))

	// Replaced output no longer matches.
	_, err = st.UpdateSampleResult(ctx, paris.ID, models.SampleResult{OutputJSON: strp(`{"a":"Paris"}`)})
	require.NoError(t, err)
	hits, err = st.SearchSamples(ctx, "Lutetia", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSamplesFollowsDeletes(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	run := createTestRun(t, st)
	sample, err := st.InsertSample(ctx, models.Sample{RunID: run.ID, InputJSON: `{"q":"ephemeral"}`})
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx, `DELETE FROM samples WHERE id = ?`, sample.ID)
	require.NoError(t, err)

	hits, err := st.SearchSamples(ctx, "ephemeral", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchSamplesLimit(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	run := createTestRun(t, st)
	for i := 0; i < 5; i++ {
		_, err := st.InsertSample(ctx, models.Sample{RunID: run.ID, Index: int64(i), InputJSON: `{"q":"repeat"}`})
		require.NoError(t, err)
	}

	hits, err := st.SearchSamples(ctx, "repeat", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestSearchSamplesBadQuery(t *testing.T) {
	st := setupStore(t)
	_, err := st.SearchSamples(context.Background(), `AND AND`, 0)
	require.Error(t, err)
}

func TestRebuildSearchIndex(t *testing.T) {
	ctx := context.Background()
	st := setupStore(t)
	run := createTestRun(t, st)
	sample, err := st.InsertSample(ctx, models.Sample{RunID: run.ID, InputJSON: `{"q":"drifted"}`})
	require.NoError(t, err)

	_, err = st.db.ExecContext(ctx, `INSERT INTO samples_fts(samples_fts) VALUES ('delete-all')`)
	require.NoError(t, err)
	hits, err := st.SearchSamples(ctx, "drifted", 0)
	require.NoError(t, err)
	require.Empty(t, hits)

	require.NoError(t, st.RebuildSearchIndex(ctx))

	hits, err = st.SearchSamples(ctx, "drifted", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{sample.ID}, hitIDs(hits))
}
