// Package broadcast is the chat core's fan-out fabric: a Redis-backed
// remote tier for cross-process delivery, an in-process local tier for
// same-process subscribers, and a supervisor that degrades to local-only
// when Redis is unhealthy.
package broadcast

import "github.com/dukepan/multi-rooms-chat-back/internal/ids"

// Envelope is the wire shape published on both tiers.
type Envelope struct {
	RoomID  ids.RoomID  `json:"room_id"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broadcaster is the capability the chat service depends on; both the
// local-only Topic and the fallback-supervised fabric satisfy it.
type Broadcaster interface {
	Broadcast(roomID ids.RoomID, env Envelope)
	Subscribe(roomID ids.RoomID) (sub *Subscription)
}
