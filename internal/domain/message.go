package domain

// SocketAction tags a SocketMessage. Only the four known actions are valid;
// anything else is logged and dropped by the receiver.
type SocketAction string

const (
	SocketActionBreakout   SocketAction = "breakout"
	SocketActionConnect    SocketAction = "connect"
	SocketActionDisconnect SocketAction = "disconnect"
	SocketActionRender     SocketAction = "render"
)

// SocketMessage is the module-scoped relay payload. UserID and BreakoutRoom
// are only meaningful for the breakout action; an empty UserID means the
// message is untargeted.
type SocketMessage struct {
	Action       SocketAction `json:"action"`
	UserID       UserID       `json:"userId,omitempty"`
	BreakoutRoom string       `json:"breakoutRoom,omitempty"`
}

func (m SocketMessage) Known() bool {
	switch m.Action {
	case SocketActionBreakout, SocketActionConnect, SocketActionDisconnect, SocketActionRender:
		return true
	}
	return false
}

// TargetedAt reports whether the message applies to the given user: either
// untargeted or addressed to them directly.
func (m SocketMessage) TargetedAt(id UserID) bool {
	return m.UserID == "" || m.UserID == id
}
