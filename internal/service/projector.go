package service

import (
	"context"
	"time"

	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/pairing"
	"github.com/webitel/im-support-service/internal/domain/room"
)

// Projector builds the dashboard session list from pairings and rooms.
type Projector struct {
	match     *pairing.Match
	rooms     room.Roomer
	directory Directory
	timeout   time.Duration
}

func NewProjector(match *pairing.Match, rooms room.Roomer, directory Directory) *Projector {
	return &Projector{
		match:     match,
		rooms:     rooms,
		directory: directory,
		timeout:   time.Second,
	}
}

// SessionSnapshot lists active sessions oldest first.
func (p *Projector) SessionSnapshot() *model.SessionSnapshot {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	pairs := p.match.Sessions(model.SessionFilter{})
	views := make([]model.SessionView, 0, len(pairs))
	for _, s := range pairs {
		// unresolved sides keep their bare IDs
		user, listener, _ := p.directory.ResolvePair(ctx, s.UserA, s.UserB)
		views = append(views, model.SessionView{
			SessionID: s.SessionID,
			User:      user,
			Listener:  listener,
			Status:    p.rooms.Status(s.SessionID),
			StartedAt: s.StartedAt,
		})
	}
	return &model.SessionSnapshot{Sessions: views, TakenAt: time.Now()}
}
