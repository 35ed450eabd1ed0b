package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/yungbote/trackflow-backend/internal/platform/envutil"
	"github.com/yungbote/trackflow-backend/internal/platform/logger"
)

// Metrics is the process metric registry. A nil *Metrics accepts every call
// and records nothing, so callers never branch on whether metrics are enabled.
type Metrics struct {
	httpRequests *CounterVec
	httpLatency  *HistogramVec
	httpInflight *Gauge
	httpErrors   *Counter

	aggregateOps       *CounterVec
	aggregateLatency   *HistogramVec
	aggregateConflicts *CounterVec
	aggregateRetries   *CounterVec
	pendingEffects     *CounterVec
	fanOutChildren     *HistogramVec
	batchReweighs      *CounterVec

	eventsPublished *CounterVec
	sseClients      *Gauge
	storageOps      *CounterVec

	dbPool    *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

// Init returns the process metrics, or nil when METRICS_ENABLED is off.
func Init(log *logger.Logger) *Metrics {
	if !envutil.Bool("METRICS_ENABLED", false) {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		log.Info("metrics enabled")
	})
	return instance
}

var (
	latencyBuckets   = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	aggregateBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2}
	fanOutBuckets    = []float64{0, 1, 2, 5, 10, 25, 50, 100, 250}
)

func newMetrics() *Metrics {
	route := []string{"method", "route", "status"}
	agg := []string{"aggregate"}
	return &Metrics{
		httpRequests: NewCounterVec("tf_api_requests_total", "API requests.", route),
		httpLatency:  NewHistogramVec("tf_api_request_duration_seconds", "API request latency.", route, latencyBuckets),
		httpInflight: NewGauge("tf_api_inflight_requests", "API requests being served."),
		httpErrors:   NewCounter("tf_api_requests_error_total", "API requests answered with a 5xx."),

		aggregateOps:       NewCounterVec("tf_aggregate_operations_total", "Aggregate writes by outcome.", []string{"aggregate", "status"}),
		aggregateLatency:   NewHistogramVec("tf_aggregate_operation_duration_seconds", "Aggregate write latency.", []string{"aggregate", "status"}, aggregateBuckets),
		aggregateConflicts: NewCounterVec("tf_aggregate_conflicts_total", "Aggregate writes rejected with a conflict.", agg),
		aggregateRetries:   NewCounterVec("tf_aggregate_retries_total", "Aggregate write attempts retried.", agg),
		pendingEffects:     NewCounterVec("tf_pending_effects_total", "Secondary effects left pending after commit.", []string{"aggregate", "step"}),
		fanOutChildren:     NewHistogramVec("tf_assembly_fanout_children", "Children created per assembly fan-out.", nil, fanOutBuckets),
		batchReweighs:      NewCounterVec("tf_batch_reweigh_total", "Batch total weight recomputes.", agg),

		eventsPublished: NewCounterVec("tf_events_published_total", "Change events by sink, type and outcome.", []string{"sink", "type", "status"}),
		sseClients:      NewGauge("tf_sse_clients", "SSE clients connected to this instance."),
		storageOps:      NewCounterVec("tf_object_storage_operations_total", "Object storage calls.", []string{"category", "op", "status"}),

		dbPool:    NewGaugeVec("tf_db_pool", "database/sql pool stats.", []string{"stat"}),
		redisUp:   NewGauge("tf_redis_up", "1 when redis answered the last ping."),
		redisPing: NewGauge("tf_redis_ping_seconds", "Latency of the last redis ping."),
	}
}

func (m *Metrics) series() []interface{ WritePrometheus(io.Writer) error } {
	return []interface{ WritePrometheus(io.Writer) error }{
		m.httpRequests, m.httpLatency, m.httpInflight, m.httpErrors,
		m.aggregateOps, m.aggregateLatency, m.aggregateConflicts, m.aggregateRetries,
		m.pendingEffects, m.fanOutChildren, m.batchReweighs,
		m.eventsPublished, m.sseClients, m.storageOps,
		m.dbPool, m.redisUp, m.redisPing,
	}
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, s := range m.series() {
		if err := s.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	if m == nil {
		http.Error(w, "metrics disabled", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, log *logger.Logger, addr string) {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	labels := []string{orUnknown(method), orUnknown(route), orUnknown(status)}
	m.httpRequests.Inc(labels...)
	if dur > 0 {
		m.httpLatency.Observe(dur.Seconds(), labels...)
	}
	if strings.HasPrefix(labels[2], "5") {
		m.httpErrors.Inc()
	}
}

// TrackInflight counts one request in flight until the returned func runs.
func (m *Metrics) TrackInflight() func() {
	if m == nil {
		return func() {}
	}
	m.httpInflight.Inc()
	return m.httpInflight.Dec
}

func (m *Metrics) ObserveAggregateOperation(name, status string, dur time.Duration) {
	if m == nil {
		return
	}
	name, status = orUnknown(name), orUnknown(status)
	m.aggregateOps.Inc(name, status)
	m.aggregateLatency.Observe(dur.Seconds(), name, status)
}

func (m *Metrics) IncAggregateConflict(name string) {
	if m != nil {
		m.aggregateConflicts.Inc(orUnknown(name))
	}
}

func (m *Metrics) IncAggregateRetry(name string) {
	if m != nil {
		m.aggregateRetries.Inc(orUnknown(name))
	}
}

func (m *Metrics) IncPendingEffect(name, step string) {
	if m != nil {
		m.pendingEffects.Inc(orUnknown(name), orUnknown(step))
	}
}

func (m *Metrics) ObserveFanOutChildren(n int) {
	if m != nil {
		m.fanOutChildren.Observe(float64(n))
	}
}

func (m *Metrics) IncBatchReweigh(name string) {
	if m != nil {
		m.batchReweighs.Inc(orUnknown(name))
	}
}

func (m *Metrics) IncEventPublished(sink, eventType, status string) {
	if m != nil {
		m.eventsPublished.Inc(orUnknown(sink), orUnknown(eventType), orUnknown(status))
	}
}

func (m *Metrics) SetSSEClients(n int) {
	if m != nil {
		m.sseClients.Set(float64(n))
	}
}

func (m *Metrics) IncStorageOp(category, op, status string) {
	if m != nil {
		m.storageOps.Inc(orUnknown(category), orUnknown(op), orUnknown(status))
	}
}

// StartCollectors samples the database pool and, when rdb is set, redis health
// every METRICS_SCRAPE_INTERVAL until ctx is done.
func (m *Metrics) StartCollectors(ctx context.Context, log *logger.Logger, db *gorm.DB, rdb redis.UniversalClient) {
	if m == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sampleDB(log, db)
				m.sampleRedis(ctx, log, rdb)
			}
		}
	}()
}

func (m *Metrics) sampleDB(log *logger.Logger, db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("db pool stats unavailable", "error", err)
		return
	}
	s := sqlDB.Stats()
	for stat, v := range map[string]float64{
		"open_connections":      float64(s.OpenConnections),
		"in_use":                float64(s.InUse),
		"idle":                  float64(s.Idle),
		"wait_count":            float64(s.WaitCount),
		"wait_duration_seconds": s.WaitDuration.Seconds(),
		"max_open_connections":  float64(s.MaxOpenConnections),
	} {
		m.dbPool.Set(v, stat)
	}
}

func (m *Metrics) sampleRedis(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if rdb == nil {
		return
	}
	start := time.Now()
	if err := rdb.Ping(ctx).Err(); err != nil {
		m.redisUp.Set(0)
		log.Warn("redis ping failed", "error", err)
		return
	}
	m.redisUp.Set(1)
	m.redisPing.Set(time.Since(start).Seconds())
}

func orUnknown(v string) string {
	if v = strings.TrimSpace(v); v == "" {
		return "unknown"
	}
	return v
}
