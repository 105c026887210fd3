package model

import (
	"fmt"
	"strconv"
	"strings"
)

// UserID is the opaque numeric identity issued by the user-management service.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// ParseUserID converts the transport representation into a UserID.
func ParseUserID(s string) (UserID, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return UserID(v), nil
}

//go:generate stringer -type=Role
type Role int8

const (
	// [ZERO_VALUE_GUARD] WE START FROM 1 TO DISTINGUISH FROM UNINITIALIZED DATA
	RoleUser Role = iota + 1
	RoleListener
	RoleAdmin
)

// Roles lists every role in display order.
var Roles = []Role{RoleUser, RoleListener, RoleAdmin}

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "USER"
	case RoleListener:
		return "LISTENER"
	case RoleAdmin:
		return "ADMIN"
	default:
		return "UNKNOWN"
	}
}

func (r Role) Valid() bool { return r >= RoleUser && r <= RoleAdmin }

// MarshalText keeps role keys readable in JSON maps.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// ParseRole resolves the wire name of a role. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USER":
		return RoleUser, nil
	case "LISTENER":
		return RoleListener, nil
	case "ADMIN":
		return RoleAdmin, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// UserIdentity is owned by the user-management collaborator and treated as immutable here.
type UserIdentity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"display_name,omitempty"`
	Role        Role   `json:"role"`
}

// Name returns a printable label, falling back to the numeric ID.
func (u UserIdentity) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return fmt.Sprintf("%s#%s", strings.ToLower(u.Role.String()), u.ID)
}
