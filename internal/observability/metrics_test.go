package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordCheck(t *testing.T) {
	counter := UpdateChecks.WithLabelValues("metrics-test", "platform", OutcomeUpdate)
	before := testutil.ToFloat64(counter)

	RecordCheck("metrics-test", "platform", OutcomeUpdate, 20*time.Millisecond)
	RecordCheck("metrics-test", "platform", OutcomeUpdate, 5*time.Millisecond)

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(UpdateCheckDuration), 1)
}
