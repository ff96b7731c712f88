// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/placement/internal/model"
)

// Recorder はメトリクス記録のインターフェース。
// サービス層、ワーカー、HTTPミドルウェアから利用する。
type Recorder interface {
	RecordApplicationCreated()
	RecordStatusTransition(to model.ApplicationStatus)
	RecordEvaluationCreated()
	RecordOffersExpired(count int64)
	RecordOffersImported(count int)
	RecordCareersFetch(ok bool, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	applicationsCreated prometheus.Counter
	transitions         *prometheus.CounterVec
	evaluationsCreated  prometheus.Counter
	offersExpired       prometheus.Counter
	offersImported      prometheus.Counter
	careersFetch        *prometheus.CounterVec
	careersLatency      prometheus.Histogram
	httpStatus          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		applicationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placement_applications_created_total",
			Help: "作成された応募の合計数",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placement_application_transitions_total",
			Help: "遷移先ステータス別の応募ステータス変更数",
		}, []string{"to"}),
		evaluationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placement_evaluations_created_total",
			Help: "作成された評価の合計数",
		}),
		offersExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placement_offers_expired_total",
			Help: "締切によりクローズされた募集の合計数",
		}),
		offersImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "placement_offers_imported_total",
			Help: "採用フィードから新規に取り込まれた募集の合計数",
		}),
		careersFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placement_careers_fetch_total",
			Help: "結果別の採用フィード取得数",
		}, []string{"result"}),
		careersLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "placement_careers_fetch_latency_seconds",
			Help:    "採用フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "placement_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.applicationsCreated,
		c.transitions,
		c.evaluationsCreated,
		c.offersExpired,
		c.offersImported,
		c.careersFetch,
		c.careersLatency,
		c.httpStatus,
	)
	return c
}

func (c *Collector) RecordApplicationCreated() {
	c.applicationsCreated.Inc()
}

func (c *Collector) RecordStatusTransition(to model.ApplicationStatus) {
	c.transitions.WithLabelValues(string(to)).Inc()
}

func (c *Collector) RecordEvaluationCreated() {
	c.evaluationsCreated.Inc()
}

func (c *Collector) RecordOffersExpired(count int64) {
	c.offersExpired.Add(float64(count))
}

func (c *Collector) RecordOffersImported(count int) {
	c.offersImported.Add(float64(count))
}

// RecordCareersFetch は採用フィード取得の結果とレイテンシを記録する。
func (c *Collector) RecordCareersFetch(ok bool, duration time.Duration) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.careersFetch.WithLabelValues(result).Inc()
	c.careersLatency.Observe(duration.Seconds())
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ Recorder = (*Collector)(nil)
