package chatplane

import "time"

// inboundFrame is the wire shape of every client-to-gateway message. Only
// the fields relevant to Type are populated by the client.
type inboundFrame struct {
	Type      string     `json:"type"`
	ChatID    string     `json:"chatId,omitempty"`
	Text      string     `json:"text,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
	Emoji     string     `json:"emoji,omitempty"`
	Typing    bool       `json:"typing,omitempty"`
	Muted     bool       `json:"muted,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
}

// outboundFrame is the wire shape of every gateway-to-client message.
type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// outboundTarget selects who receives an outboundEvent.
type outboundTarget int

const (
	targetCaller outboundTarget = iota // only the socket that sent the inbound frame
	targetRoom                         // every socket currently joined to ChatID
	targetUser                         // every socket belonging to UserID, wherever they are
)

// outboundEvent is a fan-out instruction produced by the pure frame
// handlers; dispatching it over real sockets is the gateway's job.
type outboundEvent struct {
	Target outboundTarget
	ChatID string
	UserID string
	Frame  outboundFrame
}

func toCaller(frame outboundFrame) outboundEvent {
	return outboundEvent{Target: targetCaller, Frame: frame}
}

func toRoom(chatID string, frame outboundFrame) outboundEvent {
	return outboundEvent{Target: targetRoom, ChatID: chatID, Frame: frame}
}

func toUser(userID string, frame outboundFrame) outboundEvent {
	return outboundEvent{Target: targetUser, UserID: userID, Frame: frame}
}
