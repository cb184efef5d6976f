package models

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobIDAcceptsNumberAndString(t *testing.T) {
	var snap JobProgressSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":123,"status":"running"}`), &snap))
	assert.Equal(t, JobID("123"), snap.JobID)

	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"scan-7","status":"running"}`), &snap))
	assert.Equal(t, JobID("scan-7"), snap.JobID)

	assert.Error(t, json.Unmarshal([]byte(`{"job_id":{"x":1}}`), &snap))
}

func TestJobIDMarshal(t *testing.T) {
	b, err := json.Marshal(JobID("42"))
	require.NoError(t, err)
	assert.Equal(t, "42", string(b))

	b, err = json.Marshal(JobID("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(b))

	for _, id := range []string{"007", "+5", "-0", " 1"} {
		b, err = json.Marshal(JobID(id))
		require.NoError(t, err, "id %q", id)
		assert.Equal(t, strconv.Quote(id), string(b))
	}
}

func TestJobIDStringRoundTrip(t *testing.T) {
	var snap JobProgressSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{"job_id":"007","status":"running"}`), &snap))

	b, err := json.Marshal(snap)
	require.NoError(t, err)

	var back JobProgressSnapshot
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, JobID("007"), back.JobID)
	assert.Contains(t, string(b), `"job_id":"007"`)
}

func TestJobStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestSnapshotNullableFields(t *testing.T) {
	var snap JobProgressSnapshot
	data := `{"job_id":1,"status":"running","total_units":10,"completed_units":4,"failed_units":1,
		"progress_percent":50,"phase":"processing","eta_seconds":null,"elapsed_seconds":12.5,"throughput":0.4}`
	require.NoError(t, json.Unmarshal([]byte(data), &snap))
	assert.Nil(t, snap.ETASeconds)
	require.NotNil(t, snap.ElapsedSeconds)
	assert.Equal(t, 12.5, *snap.ElapsedSeconds)
	assert.Equal(t, "processing", snap.Phase)
	assert.Equal(t, 50.0, snap.ProgressPercent)
}
