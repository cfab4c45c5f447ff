// Package metrics экспортирует метрики реестра типов дерева и шины событий в Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/woodtypes/internal/woodtype"
)

const namespace = "woodtypes"

// Collector считает события реестра.
//
// Метрики:
// * woodtypes_blocks_ingested_total{result}: classified/unclassified, только через Ingest
// * woodtypes_components_recorded_total{type}
// * woodtypes_aggregates: количество типов дерева
// * woodtypes_subscriptions_fired_total
// * woodtypes_callback_failures_total
type Collector struct {
	blocksIngested     *prometheus.CounterVec
	componentsRecorded *prometheus.CounterVec
	aggregates         prometheus.Gauge
	subscriptionsFired prometheus.Counter
	callbackFailures   prometheus.Counter
}

// NewCollector создаёт метрики и регистрирует их в reg.
// nil означает prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		blocksIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_ingested_total",
			Help:      "Блоки, прошедшие через классификатор.",
		}, []string{"result"}),
		componentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "components_recorded_total",
			Help:      "Компоненты, записанные в типы дерева, по ролям.",
		}, []string{"type"}),
		aggregates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregates",
			Help:      "Количество известных типов дерева.",
		}),
		subscriptionsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_fired_total",
			Help:      "Успешные срабатывания подписок.",
		}),
		callbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_failures_total",
			Help:      "Колбэки подписок, вернувшие ошибку или упавшие.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.blocksIngested, c.componentsRecorded, c.aggregates, c.subscriptionsFired, c.callbackFailures,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Observe обновляет метрики по событию реестра
func (c *Collector) Observe(ev woodtype.Event) {
	switch ev.Kind {
	case woodtype.EventUnclassified:
		c.blocksIngested.WithLabelValues("unclassified").Inc()
	case woodtype.EventWoodTypeCreated:
		c.aggregates.Inc()
	case woodtype.EventBlockClassified:
		c.blocksIngested.WithLabelValues("classified").Inc()
	case woodtype.EventComponentRecorded:
		c.componentsRecorded.WithLabelValues(string(ev.ComponentType)).Inc()
	case woodtype.EventSubscriptionFired:
		c.subscriptionsFired.Inc()
	case woodtype.EventCallbackFailed:
		c.callbackFailures.Inc()
	}
}

// Observer возвращает наблюдателя для woodtype.WithObserver
func (c *Collector) Observer() woodtype.Observer {
	return c.Observe
}
