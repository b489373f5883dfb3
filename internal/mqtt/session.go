package mqtt

// Result is the outcome of a session storage engine operation, mapped
// from whatever the concrete engine returns internally so the event
// layer only ever sees OK, DELETED, SESSION_ERROR, or INTERNAL_ERROR.
type Result int

const (
	ResultOK Result = iota
	ResultDeleted
	ResultSessionError
	ResultInternalError
)

// PendingPacket is one outbound packet a session is holding for later
// delivery (used by IterateSendQueue and IterateAndClearLocalDelivery).
type PendingPacket struct {
	PacketID uint16
	Type     Type
	Topic    string
	Payload  []byte
	QoS      uint8
}

// Engine is the pluggable session storage contract. A session outlives
// the connection it is bound to if the client reconnects with
// clean_start=false, so engines key state by client ID, not by
// connection.
type Engine interface {
	// GetSession returns the session for clientID, creating one if
	// cleanStart is true or none exists yet.
	GetSession(clientID string, cleanStart bool) (Result, error)
	// DeleteSession removes a session's persisted state entirely.
	DeleteSession(clientID string) (Result, error)

	// ReceivePacket records an inbound QoS>0 PUBLISH/PUBREC/PUBREL for
	// retransmission bookkeeping.
	ReceivePacket(clientID string, pkt PendingPacket) (Result, error)
	// SendPacket enqueues an outbound packet for delivery/retry tracking.
	SendPacket(clientID string, pkt PendingPacket) (Result, error)
	// IterateSendQueue walks packets awaiting acknowledgement, calling fn
	// for each; fn returns false to stop iterating early.
	IterateSendQueue(clientID string, fn func(PendingPacket) bool) (Result, error)
	// AckSendQueue drops the send-queue entry matching id. An unknown id
	// returns ResultOK: stale acknowledgements are tolerated.
	AckSendQueue(clientID string, id uint16) (Result, error)

	// Heartbeat refreshes keep-alive bookkeeping for clientID.
	Heartbeat(clientID string) (Result, error)
	// NotifyDisconnect marks the session's bound connection as gone
	// without destroying the session itself (clean_start=false semantics).
	NotifyDisconnect(clientID string) (Result, error)

	// IterateAndClearLocalDelivery drains packets queued for local
	// delivery to a now-reconnected client, calling fn for each and then
	// clearing the queue.
	IterateAndClearLocalDelivery(clientID string, fn func(PendingPacket)) (Result, error)
	// WillPublish returns clientID's last-will message, if one was
	// registered with SetWill. A registered will is not cleared by a
	// DISCONNECT.
	WillPublish(clientID string) (PendingPacket, bool, Result, error)
	// SetWill registers clientID's last-will message at CONNECT time.
	SetWill(clientID string, will PendingPacket)
}
