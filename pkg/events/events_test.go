package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelforge/reelforge/pkg/models"
)

func TestPayloadFromJob(t *testing.T) {
	out := "/data/outputs/reel_1.mp4"
	job := &models.Job{
		ID:        "j1",
		Kind:      models.JobKindTransform,
		Status:    models.JobStatusCompleted,
		Substate:  "Encoding",
		Progress:  100,
		InputRef:  "yt:abc",
		OutputRef: &out,
	}

	p := PayloadFromJob(job)
	assert.Equal(t, "j1", p.JobID)
	assert.Equal(t, models.JobKindTransform, p.Kind)
	assert.Equal(t, models.JobStatusCompleted, p.Status)
	assert.Equal(t, out, p.OutputRef)

	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)

	// Failure fields stay out of the wire form when empty.
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "failure_kind")

	p = PayloadFromJob(&models.Job{ID: "j2", Status: models.JobStatusFailed, FailureKind: models.FailureAuth})
	assert.Empty(t, p.OutputRef)
	assert.Equal(t, models.FailureAuth, p.FailureKind)
}
