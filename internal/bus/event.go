package bus

import "time"

// Event is a domain event published on the bus.
type Event struct {
	Kind    string
	At      time.Time
	Payload any
}

// Event kinds, grouped by publisher. Subscribers filter by prefix, e.g.
// "gw." for everything coming off the gateway stream.
const (
	// Gateway push events (payloads parsed at the gateway boundary).
	KindGatewayMessage  = "gw.message"  // *model.Message
	KindGatewayTyping   = "gw.typing"   // model.TypingEvent
	KindGatewayPresence = "gw.presence" // model.Presence

	// Connection lifecycle.
	KindConnStatus = "conn.status" // status.Change

	// Timeline changes for the active conversation.
	KindTimelineUpdated = "timeline.updated" // conversation ID (string)
	KindTypingChanged   = "typing.changed"   // conversation ID (string)
	KindPresenceChanged = "presence.changed" // user ID (string)

	// Cache ingestion.
	KindCacheMessage = "cache.message" // cache upsert done; conversation ID (string)
	KindMessageRead  = "read.local"    // message marked read locally; ReadMark

	// Outbox retry path.
	KindSendQueued = "send.queued" // client msg ID (string)
	KindSendAck    = "send.ack"    // SendResult
	KindSendFailed = "send.failed" // SendResult
)

// ReadMark is the payload for read.local events. The cache mirrors the
// read flag from it so history reopens in the same state.
type ReadMark struct {
	ConversationID string
	MessageID      string
}

// SendResult is the payload for send.ack and send.failed events.
type SendResult struct {
	ClientMsgID    string
	ServerMsgID    string
	ConversationID string
	Err            string
}
