package metrics

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// BridgeMetrics are the process-wide counters for cluster operations.
type BridgeMetrics struct {
	ClusterOperations metric.Int64Counter
	NodeFailures      metric.Int64Counter
	NodesManaged      metric.Int64UpDownCounter
}

var (
	bridgeMetrics     *BridgeMetrics
	bridgeMetricsLock sync.Mutex
)

func GetBridgeMetrics() *BridgeMetrics {
	bridgeMetricsLock.Lock()

	if bridgeMetrics != nil {
		bridgeMetricsLock.Unlock()
		return bridgeMetrics
	}

	bridgeMetrics = newBridgeMetrics()

	bridgeMetricsLock.Unlock()
	return bridgeMetrics
}

func newBridgeMetrics() *BridgeMetrics {
	meter := otel.Meter("github.com/replbridge/replbridge")

	clusterOperations, _ := meter.Int64Counter("cluster_operations_total")
	nodeFailures, _ := meter.Int64Counter("node_failures_total")
	nodesManaged, _ := meter.Int64UpDownCounter("nodes_managed")

	return &BridgeMetrics{
		ClusterOperations: clusterOperations,
		NodeFailures:      nodeFailures,
		NodesManaged:      nodesManaged,
	}
}
