// Package metrics implements the filesystem's metrics: per-operation
// count/latency/error measures and a current-write-ops measure, extended
// with the backend/listing/cache counters this repo's HEAD- and
// listing-heavy lookup/readdir paths need. Inode count is not a metric
// here; it is served by the fs package's GetStats/GetInodeCount.
package metrics

import (
	"context"
	"fmt"

	ocprom "contrib.go.opencensus.io/exporter/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Op tags the operation name on fs/ops_count, fs/ops_error_count and
// fs/ops_latency_usec, e.g. "lookup", "readdir", "write".
const Op = "fs_op"

// Handle is the façade every Orchestrator operation records through,
// split between recording (OpenCensus stats) and exposition (a Prometheus
// exporter registered with OpenCensus; this package does not serve it
// over HTTP).
type Handle struct {
	opsCount         *stats.Int64Measure
	opsErrorCount    *stats.Int64Measure
	opsLatencyUsec   *stats.Float64Measure
	currentWriteOps  *stats.Int64Measure
	headRequestCount *stats.Int64Measure
	listingCount     *stats.Int64Measure
	dirCacheHitCount *stats.Int64Measure
}

// NewHandle registers the OpenCensus views and a Prometheus exporter,
// returning a Handle ready to record against.
func NewHandle() (*Handle, error) {
	opsCount := stats.Int64("fs/ops_count", "Number of filesystem ops processed.", stats.UnitDimensionless)
	opsErrorCount := stats.Int64("fs/ops_error_count", "Number of filesystem ops that failed.", stats.UnitDimensionless)
	opsLatencyUsec := stats.Float64("fs/ops_latency_usec", "Latency of a filesystem op.", "us")
	currentWriteOps := stats.Int64("fs/current_write_ops", "Outstanding write operations.", stats.UnitDimensionless)
	headRequestCount := stats.Int64("backend/head_request_count", "Number of HEAD requests issued to the backend.", stats.UnitDimensionless)
	listingCount := stats.Int64("backend/listing_count", "Number of directory listing requests issued.", stats.UnitDimensionless)
	dirCacheHitCount := stats.Int64("fs/dir_cache_hit_count", "Number of readdir calls served from the directory cache.", stats.UnitDimensionless)

	opTag := tag.MustNewKey(Op)

	if err := view.Register(
		&view.View{Name: "fs/ops_count", Measure: opsCount, Aggregation: view.Sum(), TagKeys: []tag.Key{opTag}},
		&view.View{Name: "fs/ops_error_count", Measure: opsErrorCount, Aggregation: view.Sum(), TagKeys: []tag.Key{opTag}},
		&view.View{Name: "fs/ops_latency_usec", Measure: opsLatencyUsec, Aggregation: view.Distribution(0, 1000, 10000, 100000, 1000000), TagKeys: []tag.Key{opTag}},
		&view.View{Name: "fs/current_write_ops", Measure: currentWriteOps, Aggregation: view.LastValue()},
		&view.View{Name: "backend/head_request_count", Measure: headRequestCount, Aggregation: view.Sum()},
		&view.View{Name: "backend/listing_count", Measure: listingCount, Aggregation: view.Sum()},
		&view.View{Name: "fs/dir_cache_hit_count", Measure: dirCacheHitCount, Aggregation: view.Sum()},
	); err != nil {
		return nil, fmt.Errorf("registering metric views: %w", err)
	}

	exporter, err := ocprom.NewExporter(ocprom.Options{Registry: prometheus.NewRegistry()})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	view.RegisterExporter(exporter)

	return &Handle{
		opsCount:         opsCount,
		opsErrorCount:    opsErrorCount,
		opsLatencyUsec:   opsLatencyUsec,
		currentWriteOps:  currentWriteOps,
		headRequestCount: headRequestCount,
		listingCount:     listingCount,
		dirCacheHitCount: dirCacheHitCount,
	}, nil
}

func withOp(ctx context.Context, op string) context.Context {
	ctx, _ = tag.New(ctx, tag.Upsert(tag.MustNewKey(Op), op))
	return ctx
}

// RecordOp records one completed operation, its latency, and whether it
// failed.
func (h *Handle) RecordOp(ctx context.Context, op string, latencyUsec float64, failed bool) {
	ctx = withOp(ctx, op)
	_ = stats.Record(ctx, h.opsCount.M(1), h.opsLatencyUsec.M(latencyUsec))
	if failed {
		_ = stats.Record(ctx, h.opsErrorCount.M(1))
	}
}

func (h *Handle) SetCurrentWriteOps(n int64) {
	_ = stats.Record(context.Background(), h.currentWriteOps.M(n))
}

func (h *Handle) RecordHeadRequest() {
	_ = stats.Record(context.Background(), h.headRequestCount.M(1))
}

func (h *Handle) RecordListing() {
	_ = stats.Record(context.Background(), h.listingCount.M(1))
}

func (h *Handle) RecordDirCacheHit() {
	_ = stats.Record(context.Background(), h.dirCacheHitCount.M(1))
}
