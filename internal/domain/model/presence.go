package model

import "time"

// PresenceEntry is the single upserted record the presence registry keeps per user.
type PresenceEntry struct {
	Identity   UserIdentity `json:"identity"`
	Online     bool         `json:"online"`
	LastSeenAt time.Time    `json:"last_seen_at"`

	// Epoch increments on every offline->online transition so late
	// expiry signals from a previous connection can be told apart.
	Epoch uint64 `json:"-"`
}

func (e PresenceEntry) UserID() UserID { return e.Identity.ID }
func (e PresenceEntry) Role() Role     { return e.Identity.Role }

// Expired is emitted by the idle tracker when a user stopped heartbeating.
type Expired struct {
	UserID   UserID
	Epoch    uint64
	LastSeen time.Time
}
