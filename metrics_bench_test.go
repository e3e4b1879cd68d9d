package authcore

import (
	"testing"
	"time"
)

// Counter mixes recorded by one successful request of each kind.
var (
	loginPathCounters   = []MetricID{MetricLoginSuccess, MetricSessionCreated}
	refreshPathCounters = []MetricID{MetricRefreshSuccess, MetricTokenRenewed}
)

func benchmarkCounterPath(b *testing.B, enabled bool, ids []MetricID) {
	m := NewMetrics(MetricsConfig{Enabled: enabled})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			for _, id := range ids {
				m.Inc(id)
			}
		}
	})
}

func BenchmarkMetricsLoginPath(b *testing.B) {
	b.Run("enabled", func(b *testing.B) { benchmarkCounterPath(b, true, loginPathCounters) })
	b.Run("disabled", func(b *testing.B) { benchmarkCounterPath(b, false, loginPathCounters) })
}

func BenchmarkMetricsRefreshPath(b *testing.B) {
	b.Run("enabled", func(b *testing.B) { benchmarkCounterPath(b, true, refreshPathCounters) })
	b.Run("disabled", func(b *testing.B) { benchmarkCounterPath(b, false, refreshPathCounters) })
}

// Authenticate observes its latency on every call; spread samples over the
// buckets so no single counter line dominates.
func BenchmarkMetricsAuthenticateLatency(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	samples := []time.Duration{
		300 * time.Microsecond,
		3 * time.Millisecond,
		12 * time.Millisecond,
		80 * time.Millisecond,
	}
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			m.Observe(MetricValidateLatency, samples[i%len(samples)])
			m.Inc(MetricAuthenticateFailure)
			i++
		}
	})
}

// A scrape while request paths keep writing.
func BenchmarkMetricsSnapshotUnderLoad(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				m.Inc(MetricLoginSuccess)
				m.Observe(MetricValidateLatency, time.Millisecond)
			}
		}
	}()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}

	b.StopTimer()
	close(stop)
	<-done
}
