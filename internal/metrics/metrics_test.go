package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	r := NewRecorder()

	r.RecordOperation("aggregate_keys", StatusSuccess, 5*time.Millisecond)
	r.RecordOperation("aggregate_keys", StatusSuccess, 7*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("aggregate_keys", StatusSuccess)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.OperationDuration))
}

func TestTrack(t *testing.T) {
	r := NewRecorder()
	boom := errors.New("boom")

	err := r.Track("agg_send_step_two", func(error) string { return "NONCE_ALREADY_CONSUMED" }, func() error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, r.Track("agg_send_step_two", nil, func() error { return nil }))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("agg_send_step_two", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.OperationsTotal.WithLabelValues("agg_send_step_two", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ErrorsTotal.WithLabelValues("agg_send_step_two", "NONCE_ALREADY_CONSUMED")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.RecordError("balance", "rpc")

	assert.Equal(t, 1, testutil.CollectAndCount(a.ErrorsTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(b.ErrorsTotal))

	families, err := a.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.RecordOperation("generate", StatusSuccess, time.Millisecond)

	path := filepath.Join(t.TempDir(), "solana_tss.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `solana_tss_operations_total{operation="generate",status="success"} 1`)
	assert.Contains(t, string(data), "solana_tss_operation_duration_seconds_bucket")
}
