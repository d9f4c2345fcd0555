package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/requests", 201)
		IncCompensation()
		IncNotification("completed")
	})
}

func TestObserveTransition(t *testing.T) {
	before := testutil.ToFloat64(transitions.WithLabelValues("complete", "conflict"))
	ObserveTransition("complete", "conflict")
	assert.Equal(t, before+1, testutil.ToFloat64(transitions.WithLabelValues("complete", "conflict")))
}

func TestAddCascadeRejections(t *testing.T) {
	before := testutil.ToFloat64(cascadeRejections.WithLabelValues("accept"))
	AddCascadeRejections("accept", 3)
	AddCascadeRejections("accept", 0)
	assert.Equal(t, before+3, testutil.ToFloat64(cascadeRejections.WithLabelValues("accept")))
}
