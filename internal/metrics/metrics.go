// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups every metric the server exports. A nil *Collectors is
// valid and records nothing.
type Collectors struct {
	Connections       prometheus.Gauge
	UsersOnline       prometheus.Gauge
	Events            *prometheus.CounterVec
	MessagesPersisted prometheus.Counter
	PersistFailures   prometheus.Counter
	BotReplies        prometheus.Counter
	RateLimited       prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatroom",
			Name:      "connections",
			Help:      "Live WebSocket connections, joined or not.",
		}),
		UsersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatroom",
			Name:      "users_online",
			Help:      "Users currently present in the registry.",
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatroom",
			Name:      "events_total",
			Help:      "Inbound client events by type.",
		}, []string{"type"}),
		MessagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatroom",
			Name:      "messages_persisted_total",
			Help:      "Chat messages appended to the store.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatroom",
			Name:      "persist_failures_total",
			Help:      "Store writes that failed and were dropped.",
		}),
		BotReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatroom",
			Name:      "bot_replies_total",
			Help:      "Bot command replies sent.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatroom",
			Name:      "rate_limited_total",
			Help:      "Messages dropped by the per-connection rate limit.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.Connections, c.UsersOnline, c.Events,
		c.MessagesPersisted, c.PersistFailures, c.BotReplies, c.RateLimited,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collectors) ConnectionOpened() {
	if c != nil {
		c.Connections.Inc()
	}
}

func (c *Collectors) ConnectionClosed() {
	if c != nil {
		c.Connections.Dec()
	}
}

func (c *Collectors) SetUsersOnline(n int) {
	if c != nil {
		c.UsersOnline.Set(float64(n))
	}
}

func (c *Collectors) Event(eventType string) {
	if c != nil {
		c.Events.WithLabelValues(eventType).Inc()
	}
}

func (c *Collectors) Persisted() {
	if c != nil {
		c.MessagesPersisted.Inc()
	}
}

func (c *Collectors) PersistFailed() {
	if c != nil {
		c.PersistFailures.Inc()
	}
}

func (c *Collectors) BotReplied() {
	if c != nil {
		c.BotReplies.Inc()
	}
}

func (c *Collectors) Limited() {
	if c != nil {
		c.RateLimited.Inc()
	}
}
