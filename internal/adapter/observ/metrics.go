package observ

import (
	"github.com/JHPush/cart-service/internal/usecase"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CartMetrics exports cart engine counters to Prometheus.
type CartMetrics struct {
	added   *prometheus.CounterVec
	retries prometheus.Counter
	expired prometheus.Counter
}

// NewCartMetrics registers the counters on reg. Pass prometheus.DefaultRegisterer
// to expose them on the default /metrics handler.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	f := promauto.With(reg)
	return &CartMetrics{
		added: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cart_items_added_total",
				Help: "Products added to carts, by whether a new entry was created or an existing one merged",
			},
			[]string{"result"},
		),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "cart_merge_retries_total",
			Help: "Merge attempts retried after losing a race on the (user, product) pair",
		}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Name: "cart_expired_entries_deleted_total",
			Help: "Cart entries removed by the retention sweep",
		}),
	}
}

func (m *CartMetrics) ItemAdded(created bool) {
	result := "merged"
	if created {
		result = "created"
	}
	m.added.WithLabelValues(result).Inc()
}

func (m *CartMetrics) MergeRetried() { m.retries.Inc() }

func (m *CartMetrics) ExpiredDeleted(n int) {
	if n > 0 {
		m.expired.Add(float64(n))
	}
}

var _ usecase.CartMetrics = (*CartMetrics)(nil)
