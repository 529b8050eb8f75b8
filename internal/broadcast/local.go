// Local tier: an in-process, per-room topic. Generalized from the
// teacher's rooms.Manager register/unregister/broadcast channel trio
// (internal/rooms/manager.go) into a standalone type any package can use,
// and from the original's LocalMessageBroadcaster (a
// tokio::sync::broadcast::channel wrapped per subscriber).
package broadcast

import (
	"sync"

	"github.com/dukepan/multi-rooms-chat-back/internal/ids"
)

// DefaultCapacity is the buffered channel size for each subscriber,
// matching the original's broadcast::channel(1000).
const DefaultCapacity = 1000

// Subscription is a single subscriber's view of a room's local topic.
type Subscription struct {
	RoomID ids.RoomID
	C      <-chan Envelope

	topic *Topic
	ch    chan Envelope
}

// Close removes the subscription from its topic. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.topic.unsubscribe(s)
}

type roomTopic struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Topic is an in-process, multi-room publish/subscribe hub. Publishing to
// a room with no subscribers is not an error — it's simply a no-op,
// matching the original broadcaster's "Ok(()) if no receivers" contract.
type Topic struct {
	capacity int
	mu       sync.RWMutex
	rooms    map[ids.RoomID]*roomTopic
}

func NewTopic(capacity int) *Topic {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Topic{capacity: capacity, rooms: make(map[ids.RoomID]*roomTopic)}
}

func (t *Topic) roomFor(roomID ids.RoomID, create bool) *roomTopic {
	t.mu.RLock()
	rt, ok := t.rooms[roomID]
	t.mu.RUnlock()
	if ok || !create {
		return rt
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if rt, ok = t.rooms[roomID]; ok {
		return rt
	}
	rt = &roomTopic{subs: make(map[*Subscription]struct{})}
	t.rooms[roomID] = rt
	return rt
}

// Subscribe registers a new subscriber for roomID. The returned
// Subscription's channel is closed when Close is called.
func (t *Topic) Subscribe(roomID ids.RoomID) *Subscription {
	rt := t.roomFor(roomID, true)
	ch := make(chan Envelope, t.capacity)
	sub := &Subscription{RoomID: roomID, C: ch, ch: ch, topic: t}

	rt.mu.Lock()
	rt.subs[sub] = struct{}{}
	rt.mu.Unlock()
	return sub
}

func (t *Topic) unsubscribe(sub *Subscription) {
	rt := t.roomFor(sub.RoomID, false)
	if rt == nil {
		return
	}
	rt.mu.Lock()
	if _, ok := rt.subs[sub]; ok {
		delete(rt.subs, sub)
		close(sub.ch)
	}
	rt.mu.Unlock()
}

// Broadcast publishes env to every current subscriber of roomID. A
// subscriber whose channel is full is lagging and is closed rather than
// fed by dropping its backlog — a slow reader must not silently lose
// frames, it loses its stream instead.
func (t *Topic) Broadcast(roomID ids.RoomID, env Envelope) {
	rt := t.roomFor(roomID, false)
	if rt == nil {
		return
	}
	var lagging []*Subscription
	rt.mu.RLock()
	for sub := range rt.subs {
		select {
		case sub.ch <- env:
		default:
			lagging = append(lagging, sub)
		}
	}
	rt.mu.RUnlock()
	for _, sub := range lagging {
		sub.Close()
	}
}
