// Fallback supervisor: wraps the remote and local tiers behind a circuit
// breaker so a degraded Redis never blocks message delivery — publishers
// fall back to local-only fan-out and the breaker periodically probes
// Redis to decide when to go back to "available".
//
// Grounded on RoseWrightdev-Video-Conferencing's use of sony/gobreaker
// around its SFU dependency (pkg/sfu/client.go): same Settings shape,
// same Prometheus state gauge pattern.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
	"github.com/dukepan/multi-rooms-chat-back/internal/utils"
)

var breakerState = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "chat_broadcast_fabric_state",
	Help: "Broadcast fabric circuit breaker state: 0=available(closed) 1=probing(half-open) 2=degraded(open)",
})

func init() {
	prometheus.MustRegister(breakerState)
}

// Fabric is the Broadcaster the chat service depends on: publishes go to
// both tiers when the remote tier is healthy, and to the local tier only
// while degraded.
type Fabric struct {
	remote  *Remote
	local   *Topic
	breaker *gobreaker.CircuitBreaker
	logger  *utils.Logger

	mu          sync.Mutex
	relaying    map[ids.RoomID]context.CancelFunc
	subscribers map[ids.RoomID]int
}

// NewFabric builds the supervised fabric. The breaker opens after three
// consecutive remote publish failures. Timeout is the delay before an open
// breaker lets a single probe publish through again: 10s. A failed probe
// reopens it for another 10s, so while degraded the remote tier is retried
// on the first Broadcast after each 10s interval; there is no separate 60s
// probe cycle, and no probe is made while Broadcast is not called.
func NewFabric(remote *Remote, local *Topic, logger *utils.Logger) *Fabric {
	f := &Fabric{
		remote: remote, local: local, logger: logger,
		relaying:    make(map[ids.RoomID]context.CancelFunc),
		subscribers: make(map[ids.RoomID]int),
	}
	f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "broadcast-remote-tier",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.Set(float64(to))
			logger.Info(context.Background(), "broadcast fabric %s: %s -> %s", name, from, to)
		},
	})
	return f
}

// Broadcast publishes env for roomID, fanning out locally always and to
// the remote tier only while the breaker is closed or half-open.
func (f *Fabric) Broadcast(roomID ids.RoomID, env Envelope) {
	f.local.Broadcast(roomID, env)

	_, err := f.breaker.Execute(func() (interface{}, error) {
		return nil, f.remote.Publish(context.Background(), roomID, env)
	})
	if err != nil {
		f.logger.Error(context.Background(), "remote broadcast tier degraded, local-only fan-out for room %s: %v", roomID.String(), err)
	}
}

// Subscribe returns a local subscription and, the first time a given room
// is subscribed to, starts relaying that room's remote channel into the
// local topic so cross-process publishes still reach this subscriber.
func (f *Fabric) Subscribe(roomID ids.RoomID) *Subscription {
	f.mu.Lock()
	f.subscribers[roomID]++
	if _, ok := f.relaying[roomID]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		f.relaying[roomID] = cancel
		go f.remote.Relay(ctx, roomID)
	}
	f.mu.Unlock()
	return f.local.Subscribe(roomID)
}

// StopRelay releases one subscriber's hold on roomID's remote relay,
// called from session.Session's teardown path. The relay is only
// cancelled once the last local subscriber for roomID has released it, so
// one session's close never cuts off cross-process delivery for the
// others still in the room.
func (f *Fabric) StopRelay(roomID ids.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[roomID]--
	if f.subscribers[roomID] > 0 {
		return
	}
	delete(f.subscribers, roomID)
	if cancel, ok := f.relaying[roomID]; ok {
		cancel()
		delete(f.relaying, roomID)
	}
}
