package room

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/webitel/im-support-service/internal/domain/event"
	"github.com/webitel/im-support-service/internal/domain/model"
	"github.com/webitel/im-support-service/internal/domain/registry"
)

type recordingSink struct {
	mu      sync.Mutex
	records []*model.ChatRecord
}

func (s *recordingSink) PersistChatMessage(rec *model.ChatRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var (
	alice = model.UserIdentity{ID: 123, DisplayName: "alice", Role: model.RoleUser}
	bob   = model.UserIdentity{ID: 45, DisplayName: "bob", Role: model.RoleListener}
	carol = model.UserIdentity{ID: 46, DisplayName: "carol", Role: model.RoleListener}
)

func newConn(t *testing.T, id model.UserID) registry.Connector {
	t.Helper()
	conn := registry.NewConnector(context.Background(), id, 256)
	t.Cleanup(conn.Close)
	return conn
}

func next(t *testing.T, conn registry.Connector) event.Eventer {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("user %s received nothing", conn.GetUserID())
		return nil
	}
}

func expectNone(t *testing.T, conn registry.Connector) {
	t.Helper()
	select {
	case ev := <-conn.Recv():
		t.Fatalf("user %s got unexpected %s event", conn.GetUserID(), ev.GetKind())
	default:
	}
}

func expectNotice(t *testing.T, conn registry.Connector, code string) {
	t.Helper()
	ev := next(t, conn)
	if ev.GetKind() != event.Notice {
		t.Fatalf("got %s, want notice", ev.GetKind())
	}
	if n := ev.GetPayload().(*model.SystemNotice); n.Code != code {
		t.Fatalf("notice code = %q, want %q", n.Code, code)
	}
}

func TestManager_JoinTransitionsToFull(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()
	ca, cb := newConn(t, alice.ID), newConn(t, bob.ID)

	status, err := m.Join(sid, alice, ca)
	if err != nil || status != model.RoomOpen {
		t.Fatalf("first join = %s, %v", status, err)
	}
	expectNone(t, ca)

	status, err = m.Join(sid, bob, cb)
	if err != nil || status != model.RoomFull {
		t.Fatalf("second join = %s, %v", status, err)
	}
	expectNotice(t, ca, model.NoticeJoined)
	expectNotice(t, cb, model.NoticeJoined)

	if m.Status(sid) != model.RoomFull {
		t.Fatalf("status = %s", m.Status(sid))
	}
}

func TestManager_JoinErrors(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()

	if _, err := m.Join(sid, alice, newConn(t, alice.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Join(sid, alice, newConn(t, alice.ID)); !errors.Is(err, model.ErrAlreadyJoined) {
		t.Fatalf("second handle of same user: %v", err)
	}
	if _, err := m.Join(sid, bob, newConn(t, bob.ID)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Join(sid, carol, newConn(t, carol.ID)); !errors.Is(err, model.ErrRoomFull) {
		t.Fatalf("third participant: %v", err)
	}
}

func TestManager_ConcurrentJoinCapacity(t *testing.T) {
	for round := 0; round < 50; round++ {
		m := NewManager(nil)
		sid := uuid.New()

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			ok   int
			full int
		)
		for i := 1; i <= 3; i++ {
			who := model.UserIdentity{ID: model.UserID(i), Role: model.RoleUser}
			conn := newConn(t, who.ID)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := m.Join(sid, who, conn)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, model.ErrRoomFull):
					full++
				default:
					t.Errorf("unexpected join error: %v", err)
				}
			}()
		}
		wg.Wait()

		if ok != 2 || full != 1 {
			t.Fatalf("round %d: joined=%d full=%d, want 2 and 1", round, ok, full)
		}
	}
}

func TestManager_RelayOrderAndNoEcho(t *testing.T) {
	sink := &recordingSink{}
	m := NewManager(sink)
	sid := uuid.New()
	ca, cb := newConn(t, alice.ID), newConn(t, bob.ID)
	mustJoin(t, m, sid, ca, cb)

	for i := 1; i <= 100; i++ {
		if _, err := m.Relay(sid, alice.ID, strconv.Itoa(i)); err != nil {
			t.Fatalf("relay %d: %v", i, err)
		}
	}

	for i := 1; i <= 100; i++ {
		ev := next(t, cb)
		msg := ev.GetPayload().(*model.ChatMessage)
		if msg.Text != strconv.Itoa(i) || msg.SenderID != alice.ID {
			t.Fatalf("message %d: got %q from %s", i, msg.Text, msg.SenderID)
		}
	}
	expectNone(t, ca)

	if sink.len() != 100 {
		t.Fatalf("persisted %d records, want 100", sink.len())
	}
}

func TestManager_RelayNotInRoom(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()
	mustJoin(t, m, sid, newConn(t, alice.ID), newConn(t, bob.ID))

	if _, err := m.Relay(sid, carol.ID, "hi"); !errors.Is(err, model.ErrNotInRoom) {
		t.Fatalf("outsider relay: %v", err)
	}
	if _, err := m.Relay(uuid.New(), alice.ID, "hi"); !errors.Is(err, model.ErrNotInRoom) {
		t.Fatalf("unknown room relay: %v", err)
	}
}

func TestManager_LeaveClosesRoom(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()
	ca, cb := newConn(t, alice.ID), newConn(t, bob.ID)
	mustJoin(t, m, sid, ca, cb)

	if err := m.Leave(sid, cb); err != nil {
		t.Fatal(err)
	}
	expectNotice(t, ca, model.NoticeLeft)
	expectNone(t, cb)

	select {
	case <-ca.Done():
	default:
		t.Fatal("remaining handle must be closed with the room")
	}

	if m.Status(sid) != model.RoomClosed {
		t.Fatalf("status = %s", m.Status(sid))
	}
	if m.Len() != 0 {
		t.Fatalf("live rooms = %d", m.Len())
	}
	if _, err := m.Join(sid, alice, newConn(t, alice.ID)); !errors.Is(err, model.ErrRoomClosed) {
		t.Fatalf("rejoin after leave: %v", err)
	}
	if _, err := m.Relay(sid, alice.ID, "still there?"); !errors.Is(err, model.ErrNotInRoom) {
		t.Fatalf("relay after close: %v", err)
	}
}

func TestManager_LeaveWithForeignHandle(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()
	mustJoin(t, m, sid, newConn(t, alice.ID), newConn(t, bob.ID))

	if err := m.Leave(sid, newConn(t, carol.ID)); !errors.Is(err, model.ErrNotInRoom) {
		t.Fatalf("foreign leave: %v", err)
	}
	if m.Status(sid) != model.RoomFull {
		t.Fatalf("room must stay FULL, got %s", m.Status(sid))
	}
}

func TestManager_CloseBeforeAnyJoin(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()

	if m.Close(sid, alice.ID) {
		t.Fatal("no live room existed")
	}
	if _, err := m.Join(sid, alice, newConn(t, alice.ID)); !errors.Is(err, model.ErrRoomClosed) {
		t.Fatalf("join after close: %v", err)
	}
}

func TestManager_CloseOnBehalfOfAbsentUser(t *testing.T) {
	m := NewManager(nil)
	sid := uuid.New()
	ca := newConn(t, alice.ID)
	if _, err := m.Join(sid, alice, ca); err != nil {
		t.Fatal(err)
	}

	// bob never joined but his session ends
	if !m.Close(sid, bob.ID) {
		t.Fatal("live room expected")
	}
	expectNotice(t, ca, model.NoticeLeft)
}

func TestManager_DeadPeerClosesRoom(t *testing.T) {
	m := NewManager(nil, WithSendTimeout(time.Millisecond))
	sid := uuid.New()
	ca, cb := newConn(t, alice.ID), newConn(t, bob.ID)
	mustJoin(t, m, sid, ca, cb)

	cb.Close()
	if _, err := m.Relay(sid, alice.ID, "anyone?"); err != nil {
		t.Fatal(err)
	}
	expectNotice(t, ca, model.NoticeLeft)
	if m.Status(sid) != model.RoomClosed {
		t.Fatalf("status = %s", m.Status(sid))
	}
}

func mustJoin(t *testing.T, m *Manager, sid uuid.UUID, ca, cb registry.Connector) {
	t.Helper()
	if _, err := m.Join(sid, alice, ca); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Join(sid, bob, cb); err != nil {
		t.Fatal(err)
	}
	expectNotice(t, ca, model.NoticeJoined)
	expectNotice(t, cb, model.NoticeJoined)
}
