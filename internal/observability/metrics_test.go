package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordActions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.RecordTransfer(true, 100)
	m.RecordTransfer(false, 50)
	m.RecordTransferSkipped()
	m.RecordMove(true, 70)
	m.RecordUnlockFailure()
	m.RecordHoldingStake(64, 170)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersTotal.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersTotal.WithLabelValues("skipped")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.TransferredRao))
	assert.Equal(t, 70.0, testutil.ToFloat64(m.DelegatedRao))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnlockFailures))
	assert.Equal(t, 170.0, testutil.ToFloat64(m.HoldingStakeRao.WithLabelValues("64")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	m.RecordTransfer(true, 1)
	m.RecordMove(false, 1)
	m.RecordQueryError("stake_of")
	m.RecordRPCLatency("m", time.Second)
	m.RecordRun(time.Second, time.Now())
}

func TestPush(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)
	m.RecordRun(2*time.Second, time.Unix(1700000000, 0))

	err := Push(context.Background(), server.URL, "alpha-custody", reg)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/metrics/job/alpha-custody"), "unexpected path %s", gotPath)
}
