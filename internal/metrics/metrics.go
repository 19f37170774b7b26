// Package metrics はジョブのライフサイクルを Prometheus 指標として公開します。
//
// 指標:
//
//	inference_jobs_submitted_total           受け付けたジョブ数
//	inference_jobs_started_total             外部プログラムを起動したジョブ数
//	inference_jobs_finished_total{status}    終端状態に達したジョブ数
//	inference_jobs_active                    受付済みで未完了のジョブ数
//	inference_job_duration_seconds{status}   外部プログラムの実行時間
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourusername/inference-server/internal/jobs"
)

const namespace = "inference"

// Collector は jobs.Observer を実装します。
type Collector struct {
	jobsSubmitted prometheus.Counter
	jobsStarted   prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsActive    prometheus.Gauge
	jobDuration   *prometheus.HistogramVec
}

var _ jobs.Observer = (*Collector)(nil)

// NewRegistry は Go ランタイムとプロセスの指標を含むレジストリを作成します。
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewCollector は指標を作成して reg に登録します。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs accepted",
		}),
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of jobs whose external program was started",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Total number of jobs that reached a terminal status",
		}, []string{"status"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_active",
			Help:      "Current number of accepted jobs that have not finished",
		}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "External program run time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		}, []string{"status"}),
	}

	reg.MustRegister(
		c.jobsSubmitted,
		c.jobsStarted,
		c.jobsFinished,
		c.jobsActive,
		c.jobDuration,
	)
	return c
}

func (c *Collector) JobSubmitted() {
	c.jobsSubmitted.Inc()
	c.jobsActive.Inc()
}

func (c *Collector) JobStarted() {
	c.jobsStarted.Inc()
}

func (c *Collector) JobFinished(status jobs.Status, elapsed time.Duration) {
	c.jobsActive.Dec()
	c.jobsFinished.WithLabelValues(string(status)).Inc()
	c.jobDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// Handler は reg の内容を公開する HTTP ハンドラを返します。
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
