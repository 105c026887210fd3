package model

import "fmt"

type RoomStatus int8

const (
	RoomOpen   RoomStatus = iota + 1 // [0..1 PARTICIPANTS]
	RoomFull                         // [2 PARTICIPANTS]
	RoomClosed                       // [TERMINAL]
)

// RoomCapacity is a product invariant: one user plus one listener.
const RoomCapacity = 2

func (s RoomStatus) String() string {
	switch s {
	case RoomOpen:
		return "OPEN"
	case RoomFull:
		return "FULL"
	case RoomClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func (s RoomStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *RoomStatus) UnmarshalText(b []byte) error {
	switch string(b) {
	case "OPEN":
		*s = RoomOpen
	case "FULL":
		*s = RoomFull
	case "CLOSED":
		*s = RoomClosed
	default:
		return fmt.Errorf("unknown room status %q", b)
	}
	return nil
}
