// Package metrics provides Prometheus-based counters for the bridge.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder tracks bridge activity: ingested messages, batch flushes,
// agent dispatches, outbound sends and delivery-queue outcomes.
type Recorder struct {
	messagesIngested *prometheus.CounterVec
	batchesFlushed   *prometheus.CounterVec
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	sendsTotal       *prometheus.CounterVec
	deliveriesTotal  *prometheus.CounterVec
}

// NewRecorder registers the bridge metrics with the default registry.
// Call at most once per process.
func NewRecorder() *Recorder {
	return &Recorder{
		messagesIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waclaw_messages_ingested_total",
				Help: "Inbound WhatsApp messages persisted, by chat type",
			},
			[]string{"chat_type"},
		),
		batchesFlushed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waclaw_batches_flushed_total",
				Help: "Batch flushes, by kind (hard or ambient)",
			},
			[]string{"kind"},
		),
		dispatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waclaw_dispatches_total",
				Help: "Agent dispatches, by agent and status",
			},
			[]string{"agent", "status"},
		),
		dispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waclaw_dispatch_duration_seconds",
				Help:    "Wall time of one agent dispatch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		sendsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waclaw_sends_total",
				Help: "Texts handed to the outbound queue, by source (dispatch, poller)",
			},
			[]string{"source"},
		),
		deliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waclaw_deliveries_total",
				Help: "Delivery-queue rows resolved by the poller, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// IncIngested records one persisted inbound message.
func (r *Recorder) IncIngested(chatType string) {
	r.messagesIngested.WithLabelValues(chatType).Inc()
}

// IncFlush records one batch flush. kind is "hard" or "ambient".
func (r *Recorder) IncFlush(kind string) {
	r.batchesFlushed.WithLabelValues(kind).Inc()
}

// ObserveDispatch records one completed agent dispatch.
func (r *Recorder) ObserveDispatch(agent string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.dispatchesTotal.WithLabelValues(agent, status).Inc()
	r.dispatchDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// IncSend records one text handed to the outbound queue.
func (r *Recorder) IncSend(source string) {
	r.sendsTotal.WithLabelValues(source).Inc()
}

// IncDelivery records one delivery row resolved by the poller.
func (r *Recorder) IncDelivery(outcome string) {
	r.deliveriesTotal.WithLabelValues(outcome).Inc()
}

// Handler serves the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes the default registry at /metrics on addr until ctx is
// cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
