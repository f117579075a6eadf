package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "items_stored",
			Help: "Number of items currently held in the store",
		},
	)

	itemEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "item_events_published_total",
			Help: "Number of item events handed to the event feed",
		},
		[]string{"type"},
	)

	itemEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "item_events_dropped_total",
			Help: "Number of item events dropped for slow websocket clients",
		},
	)
)
