package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreslab/nodeagent/internal/pool/types"
)

func TestNewCollectorPreRegistersZeroValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := New(reg)
	require.NotNil(t, collector)

	families, err := reg.Gather()
	require.NoError(t, err)

	var sawMisses bool
	for _, fam := range families {
		if fam.GetName() == "nodeagent_worker_cache_misses_total" {
			sawMisses = true
			assert.Len(t, fam.GetMetric(), 4, "expected all four mismatch reasons pre-registered")
		}
	}
	assert.True(t, sawMisses, "expected cache miss counter vec to be registered at startup")
}

func TestRecordHelpersDoNotPanic(t *testing.T) {
	collector := New(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		collector.ObserveRegisterLatency(12.5)
		collector.IncWorkersStarted()
		collector.IncCacheHit()
		collector.IncCacheMiss(types.MismatchRuntimeEnv)
	})
}
