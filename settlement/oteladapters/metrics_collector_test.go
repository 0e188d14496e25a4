package oteladapters_test

import (
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/shelfmarket/purchase-settlement-go/settlement/oteladapters"
)

func Test_MetricsCollector_ConcurrentFirstUse(t *testing.T) {
	// arrange - one collector shared across goroutines, instruments are
	// created lazily so every call races on first use
	collector := oteladapters.NewMetricsCollector(noop.NewMeterProvider().Meter("test"))

	// act
	var wg sync.WaitGroup

	for i := 0; i < 32; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			labels := map[string]string{"operation": "complete", "outcome": "applied"}
			collector.IncrementCounter("settlement_store_operations_total", labels)
			collector.RecordDuration("settlement_store_operation_duration", time.Millisecond, labels)
			collector.RecordValue("settlement_pending_purchases", 1, labels)
		}()
	}

	// assert - must finish without a concurrent map write
	wg.Wait()
}
