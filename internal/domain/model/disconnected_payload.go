package model

// DisconnectedPayload is the last frame sent before the server closes a stream.
type DisconnectedPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code,omitempty"`
}

const (
	DisconnectShutdown = "SHUTDOWN"
	DisconnectReplaced = "REPLACED" // a newer subscriber took over the handle
	DisconnectEvicted  = "EVICTED"
	DisconnectLogout   = "LOGGED_OUT"
	DisconnectKicked   = "KICKED"
)
