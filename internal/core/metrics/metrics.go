package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "quicklistener"

// Gauges 状态类指标的取值函数
type Gauges struct {
	ActiveKeys      func() float64
	Listeners       func() float64
	PendingBarriers func() float64
}

// Metrics 一个 Bus 的指标集合
type Metrics struct {
	reg prometheus.Registerer

	broadcasts     *prometheus.CounterVec
	deliveries     prometheus.Counter
	deliveryErrors prometheus.Counter
	responses      prometheus.Counter
	timeouts       *prometheus.CounterVec

	collectors []prometheus.Collector
}

// New 创建指标集合
//
// reg 为 nil 时指标只在内存中累计，不对外注册。
func New(reg prometheus.Registerer, busID string, g Gauges) (*Metrics, error) {
	labels := prometheus.Labels{"bus": busID}

	m := &Metrics{
		reg: reg,
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "broadcasts_total",
			Help:        "Number of broadcasts by event type.",
			ConstLabels: labels,
		}, []string{"type"}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "deliveries_total",
			Help:        "Number of listener callback invocations.",
			ConstLabels: labels,
		}),
		deliveryErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "delivery_errors_total",
			Help:        "Number of listener callbacks that failed or panicked.",
			ConstLabels: labels,
		}),
		responses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "responses_total",
			Help:        "Number of responses posted by listeners.",
			ConstLabels: labels,
		}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "wait_timeouts_total",
			Help:        "Number of wait operations that timed out.",
			ConstLabels: labels,
		}, []string{"op"}),
	}

	m.collectors = []prometheus.Collector{
		m.broadcasts, m.deliveries, m.deliveryErrors, m.responses, m.timeouts,
	}
	m.collectors = append(m.collectors, gauge("active_keys", "Number of active keys.", labels, g.ActiveKeys)...)
	m.collectors = append(m.collectors, gauge("listeners", "Number of live listeners.", labels, g.Listeners)...)
	m.collectors = append(m.collectors, gauge("pending_barriers", "Number of broadcasts still awaiting listeners.", labels, g.PendingBarriers)...)

	if reg == nil {
		return m, nil
	}
	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range m.collectors[:i] {
				reg.Unregister(done)
			}
			return nil, err
		}
	}
	return m, nil
}

func gauge(name, help string, labels prometheus.Labels, fn func() float64) []prometheus.Collector {
	if fn == nil {
		return nil
	}
	return []prometheus.Collector{prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn)}
}

// Broadcast 记录一次广播
func (m *Metrics) Broadcast(eventType string) {
	m.broadcasts.WithLabelValues(eventType).Inc()
}

// Delivered 记录一次回调执行
func (m *Metrics) Delivered() {
	m.deliveries.Inc()
}

// DeliveryFailed 记录一次回调失败
func (m *Metrics) DeliveryFailed() {
	m.deliveryErrors.Inc()
}

// Responded 记录一次 respond
func (m *Metrics) Responded() {
	m.responses.Inc()
}

// TimedOut 记录一次等待超时
func (m *Metrics) TimedOut(op string) {
	m.timeouts.WithLabelValues(op).Inc()
}

// Unregister 从 Registerer 注销全部采集器
func (m *Metrics) Unregister() error {
	if m.reg == nil {
		return nil
	}

	var err error
	for _, c := range m.collectors {
		if !m.reg.Unregister(c) {
			err = multierr.Append(err, errNotRegistered)
		}
	}
	return err
}
