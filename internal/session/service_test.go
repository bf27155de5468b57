package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metriq-ai/metriq/internal/assembly"
	"github.com/metriq-ai/metriq/internal/model"
)

func TestStartMetadataRecordsDeltaSkips(t *testing.T) {
	tmpl := model.Template{Goal: model.GoalJobFit}
	skippedA := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	skippedB := uuid.MustParse("00000000-0000-0000-0000-00000000000a")

	meta := startMetadata(tmpl, assembly.Plan{
		Imported: map[uuid.UUID]float64{skippedA: 4.5, skippedB: 4.2},
	}, 6)

	assert.Equal(t, 6, meta["question_count"])
	assert.Equal(t, "job_fit", meta["goal"])
	skipped, ok := meta["delta_skipped_competencies"].([]string)
	require.True(t, ok)
	assert.Equal(t, []string{skippedB.String(), skippedA.String()}, skipped,
		"skip set is sorted for stable event payloads")
}

func TestStartMetadataWithoutDelta(t *testing.T) {
	meta := startMetadata(model.Template{Goal: model.GoalOverview}, assembly.Plan{}, 12)
	assert.Equal(t, 12, meta["question_count"])
	assert.Equal(t, "overview", meta["goal"])
	assert.NotContains(t, meta, "delta_skipped_competencies")
}
