package model

// ConnectedPayload is the first frame of every notification or dashboard stream.
type ConnectedPayload struct {
	Ok            bool   `json:"ok"`
	ConnectionID  string `json:"connection_id"`
	ServerVersion string `json:"server_version"`
}

// ServerVersion is stamped at build time through cmd.
var ServerVersion = "0.0.0"
