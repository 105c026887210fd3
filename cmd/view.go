package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/webitel/im-support-service/infra/client/dashboard"
	"github.com/webitel/im-support-service/internal/domain/model"
)

// dashboardView folds snapshots into what the terminal commands print.
type dashboardView struct {
	online   map[model.Role]int
	sessions []model.SessionView
	hub      *model.HubStats
	updated  time.Time
}

func newDashboardView() *dashboardView {
	return &dashboardView{online: map[model.Role]int{}}
}

func (v *dashboardView) applySnapshot(s *dashboard.Snapshot) {
	if s.Presence != nil {
		v.online = s.Presence.OnlineByRole
		v.updated = s.Presence.TakenAt
	}
	if s.Sessions != nil {
		v.setSessions(s.Sessions.Sessions, s.Sessions.TakenAt)
	}
	hub := s.Hub
	v.hub = &hub
}

func (v *dashboardView) apply(u dashboard.Update) {
	switch {
	case u.Presence != nil:
		v.online = u.Presence.OnlineByRole
		v.updated = u.Presence.TakenAt
	case u.Sessions != nil:
		v.setSessions(u.Sessions.Sessions, u.Sessions.TakenAt)
	}
}

func (v *dashboardView) setSessions(sessions []model.SessionView, at time.Time) {
	sorted := append([]model.SessionView(nil), sessions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartedAt.Before(sorted[j].StartedAt) })
	v.sessions = sorted
	if at.After(v.updated) {
		v.updated = at
	}
}

// counts returns one bar per known role, zero included.
func (v *dashboardView) counts() ([]string, []float64) {
	labels := make([]string, 0, len(model.Roles))
	data := make([]float64, 0, len(model.Roles))
	for _, r := range model.Roles {
		labels = append(labels, r.String())
		data = append(data, float64(v.online[r]))
	}
	return labels, data
}

func (v *dashboardView) rows(now time.Time) [][]string {
	rows := [][]string{{"SESSION", "USER", "LISTENER", "STATUS", "AGE"}}
	for _, s := range v.sessions {
		rows = append(rows, []string{
			s.SessionID.String()[:8],
			s.User.ID.String(),
			s.Listener.ID.String(),
			s.Status.String(),
			now.Sub(s.StartedAt).Truncate(time.Second).String(),
		})
	}
	return rows
}

func (v *dashboardView) summary() string {
	total := 0
	for _, n := range v.online {
		total += n
	}
	text := fmt.Sprintf("online: %d\nsessions: %d", total, len(v.sessions))
	if v.hub != nil {
		text += fmt.Sprintf("\nhub users: %d\nhub connections: %d\nviewers: %d\nuptime: %s",
			v.hub.TotalUsers, v.hub.TotalConnections, v.hub.DashboardViewers, v.hub.Uptime.Truncate(time.Second))
	}
	if !v.updated.IsZero() {
		text += "\nupdated: " + v.updated.Local().Format(time.TimeOnly)
	}
	return text
}
