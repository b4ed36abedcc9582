package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector_RecordRun(t *testing.T) {
	c := NewCollector()
	before := testutil.ToFloat64(runsTotal.WithLabelValues("dry_run", "completed"))

	c.RecordRun(true, false, 2*time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(runsTotal.WithLabelValues("dry_run", "completed")))
}

func TestCollector_RecordExecuted(t *testing.T) {
	c := NewCollector()
	beforeCount := testutil.ToFloat64(executedTotal.WithLabelValues("DELETE"))
	beforeBytes := testutil.ToFloat64(bytesSaved)

	c.RecordExecuted("DELETE", 5_000_000)
	c.RecordExecuted("DELETE", -10)

	assert.Equal(t, beforeCount+2, testutil.ToFloat64(executedTotal.WithLabelValues("DELETE")))
	assert.Equal(t, beforeBytes+5_000_000, testutil.ToFloat64(bytesSaved))
}

func TestCollector_RecordOracleCall(t *testing.T) {
	c := NewCollector()
	beforeOK := testutil.ToFloat64(oracleRequests.WithLabelValues("artifact", "ok"))
	beforeErr := testutil.ToFloat64(oracleRequests.WithLabelValues("artifact", "error"))

	c.RecordOracleCall("artifact", nil, 10*time.Millisecond)
	c.RecordOracleCall("artifact", errors.New("timeout"), time.Second)

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(oracleRequests.WithLabelValues("artifact", "ok")))
	assert.Equal(t, beforeErr+1, testutil.ToFloat64(oracleRequests.WithLabelValues("artifact", "error")))
}

func TestCollector_RecordWarningAndRecommendation(t *testing.T) {
	c := NewCollector()
	beforeWarn := testutil.ToFloat64(warningsTotal.WithLabelValues("execution"))
	beforeRec := testutil.ToFloat64(recommendationsTotal.WithLabelValues("PROTECT"))

	c.RecordWarning("execution")
	c.RecordRecommendation("PROTECT")

	assert.Equal(t, beforeWarn+1, testutil.ToFloat64(warningsTotal.WithLabelValues("execution")))
	assert.Equal(t, beforeRec+1, testutil.ToFloat64(recommendationsTotal.WithLabelValues("PROTECT")))
}
