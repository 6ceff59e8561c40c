// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 外部サービスのクライアントやミドルウェアから利用する。
type MetricsCollector interface {
	RecordStoreRequest(op, outcome string)
	RecordUpload(resource, outcome string)
	RecordUploadLatency(resource string, duration time.Duration)
	RecordLogin(outcome string)
	RecordGuardDecision(state string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	storeRequests  *prometheus.CounterVec
	uploads        *prometheus.CounterVec
	uploadLatency  *prometheus.HistogramVec
	logins         *prometheus.CounterVec
	guardDecisions *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		storeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musify_store_requests_total",
			Help: "RESTストアへのリクエスト数（操作・結果別）",
		}, []string{"op", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musify_media_uploads_total",
			Help: "メディアホストへのアップロード数（種別・結果別）",
		}, []string{"resource", "outcome"}),
		uploadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "musify_media_upload_latency_seconds",
			Help:    "メディアアップロードのレイテンシ（秒）",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"resource"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musify_logins_total",
			Help: "ログイン試行数（結果別）",
		}, []string{"outcome"}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musify_guard_decisions_total",
			Help: "保護ルートのアクセス判定数（状態別）",
		}, []string{"state"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "musify_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.storeRequests,
		c.uploads,
		c.uploadLatency,
		c.logins,
		c.guardDecisions,
		c.httpStatus,
	)

	return c
}

// RecordStoreRequest はRESTストアへのリクエスト結果を記録する。
func (c *Collector) RecordStoreRequest(op, outcome string) {
	c.storeRequests.WithLabelValues(op, outcome).Inc()
}

// RecordUpload はアップロード結果を記録する。
func (c *Collector) RecordUpload(resource, outcome string) {
	c.uploads.WithLabelValues(resource, outcome).Inc()
}

// RecordUploadLatency はアップロードのレイテンシを記録する。
func (c *Collector) RecordUploadLatency(resource string, duration time.Duration) {
	c.uploadLatency.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordGuardDecision はアクセス判定の結果を記録する。
func (c *Collector) RecordGuardDecision(state string) {
	c.guardDecisions.WithLabelValues(state).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
