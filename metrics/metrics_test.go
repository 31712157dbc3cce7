package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/credential-registry-client/interfaces"
)

func TestRecorders(t *testing.T) {
	RecordTxSubmitted("registerInstitution")
	assert.Equal(t, float64(1), counterValue(t, txSubmitted.WithLabelValues("registerInstitution")))

	RecordTxFinished("registerInstitution", "confirmed", 3*time.Second)
	assert.Equal(t, float64(1), counterValue(t, txFinished.WithLabelValues("registerInstitution", "confirmed")))

	RecordRead("credential", fmt.Errorf("lookup: %w", interfaces.ErrNotFound))
	assert.Equal(t, float64(1), counterValue(t, contractReads.WithLabelValues("credential", "not_found")))

	RecordPin("pinata", errors.New("boom"))
	assert.Equal(t, float64(1), counterValue(t, pinUploads.WithLabelValues("pinata", "error")))
}

func TestResultLabel(t *testing.T) {
	assert.Equal(t, "ok", resultLabel(nil))
	assert.Equal(t, "reverted", resultLabel(&interfaces.RevertError{Reason: "x"}))
	assert.Equal(t, "network_error", resultLabel(interfaces.ErrNetwork))
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	srv, err := New("127.0.0.1:0")
	require.NoError(t, err)
	assert.NotNil(t, srv)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
