package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"arenasync/entity"
	"arenasync/protocol"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	sent   []protocol.Message
	closed bool
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(b []byte) bool {
	msg, err := protocol.Decode(b)
	if err != nil {
		panic(err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return true
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// take 返回并清空已收到的消息
func (f *fakeConn) take() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func newTestRoom() (*Room, *testClock, *MemoryStore) {
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	cfg := RoomConfig{SweepInterval: 10 * time.Second, InactivityTimeout: 30 * time.Second}
	return NewRoom("arena", cfg, store, clock.Now, zap.NewNop().Sugar()), clock, store
}

func join(r *Room, c *fakeConn, id, name string) {
	r.handleInput(c, protocol.Join(id, name, "#123456"))
}

func TestJoinRepliesListAndAnnounces(t *testing.T) {
	r, _, _ := newTestRoom()
	a := &fakeConn{id: "ca"}
	b := &fakeConn{id: "cb"}

	join(r, a, "pa", "alice")
	got := a.take()
	if len(got) != 1 || got[0].Type != protocol.TypePlayersList || len(got[0].Players) != 0 {
		t.Fatalf("first joiner got %+v, want empty playersList", got)
	}

	join(r, b, "pb", "bob")
	got = b.take()
	if len(got) != 1 || got[0].Type != protocol.TypePlayersList || len(got[0].Players) != 1 || got[0].Players[0].ID != "pa" {
		t.Fatalf("second joiner got %+v, want playersList with pa", got)
	}
	if name := got[0].Players[0].Name; name == nil || *name != "alice" {
		t.Fatalf("listed name = %v", name)
	}
	got = a.take()
	if len(got) != 1 || got[0].Type != protocol.TypeRemotePlayerAdded || got[0].PlayerData.ID != "pb" {
		t.Fatalf("existing player got %+v, want remotePlayerAdded pb", got)
	}

	// 重复 join 不再广播
	join(r, b, "pb", "bob")
	if got := a.take(); len(got) != 0 {
		t.Fatalf("re-join broadcast %+v", got)
	}
}

func TestStateUpdateRelayedExcludingSender(t *testing.T) {
	r, _, _ := newTestRoom()
	a := &fakeConn{id: "ca"}
	b := &fakeConn{id: "cb"}
	join(r, a, "pa", "alice")
	join(r, b, "pb", "bob")
	a.take()
	b.take()

	r.handleInput(a, protocol.StateUpdate("pa", entity.State{X: entity.Ptr(7.0)}))
	r.handleInput(a, protocol.StateUpdate("pa", entity.State{Health: entity.Ptr(55.0)}))

	if got := a.take(); len(got) != 0 {
		t.Fatalf("sender received its own update: %+v", got)
	}
	got := b.take()
	if len(got) != 2 || got[0].Type != protocol.TypeRemotePlayerUpdated || got[0].Player.ID != "pa" {
		t.Fatalf("b got %+v", got)
	}
	if got[1].Player.X != nil {
		t.Fatal("relay forwarded fields absent from the update")
	}

	snap := r.players["pa"].Snapshot()
	if *snap.X != 7 || *snap.Health != 55 || *snap.Name != "alice" {
		t.Fatalf("stored snapshot not merged: %+v", snap)
	}
}

func TestSpoofedMessagesDropped(t *testing.T) {
	r, _, _ := newTestRoom()
	a := &fakeConn{id: "ca"}
	b := &fakeConn{id: "cb"}
	join(r, a, "pa", "alice")
	join(r, b, "pb", "bob")
	a.take()
	b.take()

	r.handleInput(a, protocol.StateUpdate("pb", entity.State{Health: entity.Ptr(0.0)}))
	r.handleInput(a, protocol.Join("pc", "carol", ""))
	anon := &fakeConn{id: "cx"}
	r.handleInput(anon, protocol.Heartbeat("pa"))

	if got := b.take(); len(got) != 0 {
		t.Fatalf("spoofed messages relayed: %+v", got)
	}
	if _, ok := r.players["pc"]; ok {
		t.Fatal("connection joined as a second player")
	}
	if n := r.metrics.Spoofed; n != 3 {
		t.Fatalf("spoofed = %d, want 3", n)
	}
}

func TestLeaveAndDisconnectBroadcastRemoved(t *testing.T) {
	r, _, _ := newTestRoom()
	a := &fakeConn{id: "ca"}
	b := &fakeConn{id: "cb"}
	c := &fakeConn{id: "cc"}
	join(r, a, "pa", "alice")
	join(r, b, "pb", "bob")
	join(r, c, "pc", "carol")
	a.take()

	r.handleInput(b, protocol.Leave("pb"))
	r.handleLeave(c)
	r.handleLeave(c)

	got := a.take()
	if len(got) != 2 || got[0].Type != protocol.TypePlayerRemoved || got[0].PlayerID != "pb" || got[1].PlayerID != "pc" {
		t.Fatalf("a got %+v, want playerRemoved pb then pc", got)
	}
	if len(r.players) != 1 {
		t.Fatalf("players = %d", len(r.players))
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	r, _, _ := newTestRoom()
	a := &fakeConn{id: "ca"}
	old := &fakeConn{id: "old"}
	join(r, a, "pa", "alice")
	join(r, old, "pb", "bob")
	a.take()

	fresh := &fakeConn{id: "new"}
	join(r, fresh, "pb", "bob")
	if !old.closed {
		t.Fatal("replaced connection not closed")
	}
	r.handleLeave(old)
	if _, ok := r.players["pb"]; !ok {
		t.Fatal("closing the stale connection removed the player")
	}
	if got := a.take(); len(got) != 0 {
		t.Fatalf("reconnect broadcast %+v", got)
	}
}

func TestSweepEvictsInactive(t *testing.T) {
	r, clock, _ := newTestRoom()
	a := &fakeConn{id: "ca"}
	b := &fakeConn{id: "cb"}
	join(r, a, "pa", "alice")
	join(r, b, "pb", "bob")
	b.take()

	clock.t = clock.t.Add(20 * time.Second)
	r.handleInput(b, protocol.Heartbeat("pb"))
	clock.t = clock.t.Add(15 * time.Second)
	r.Sweep(clock.Now())

	if _, ok := r.players["pa"]; ok {
		t.Fatal("inactive player kept")
	}
	if _, ok := r.players["pb"]; !ok {
		t.Fatal("active player evicted")
	}
	if !a.closed {
		t.Fatal("evicted connection not closed")
	}
	got := b.take()
	if len(got) != 1 || got[0].Type != protocol.TypePlayerRemoved || got[0].PlayerID != "pa" {
		t.Fatalf("b got %+v", got)
	}

	r.Sweep(clock.Now())
	if got := b.take(); len(got) != 0 {
		t.Fatalf("second sweep broadcast %+v", got)
	}
	if r.metrics.Evicted != 1 {
		t.Fatalf("evicted = %d", r.metrics.Evicted)
	}
}

func TestFlushWritesStore(t *testing.T) {
	r, _, store := newTestRoom()
	a := &fakeConn{id: "ca"}
	join(r, a, "pa", "alice")
	r.handleInput(a, protocol.StateUpdate("pa", entity.State{Level: entity.Ptr(3)}))
	r.flush()

	ctx := context.Background()
	list, err := store.List(ctx, "arena")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != "pa" || *list[0].Level != 3 {
		t.Fatalf("store = %+v", list)
	}

	r.handleLeave(a)
	r.flush()
	if list, _ := store.List(ctx, "arena"); len(list) != 0 {
		t.Fatalf("store after leave = %+v", list)
	}
}

func TestRunAppliesConfigUpdate(t *testing.T) {
	r, _, _ := newTestRoom()
	go r.Run()
	defer func() {
		r.Stop()
		<-r.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	upd := RoomConfig{SweepInterval: time.Second, InactivityTimeout: 5 * time.Second}
	got, err := r.query(ctx, configQuery{update: &upd, reply: make(chan RoomConfig, 1)})
	if err != nil {
		t.Fatal(err)
	}
	if got != upd {
		t.Fatalf("config = %+v, want %+v", got, upd)
	}
}

func TestIdleRoomIsReaped(t *testing.T) {
	m := NewRoomManager(RoomConfig{SweepInterval: 10 * time.Millisecond, InactivityTimeout: time.Minute}, NewMemoryStore(), time.Now, zap.NewNop().Sugar())
	defer m.StopAll()

	r := m.Acquire("idle")
	time.Sleep(50 * time.Millisecond)
	if _, ok := m.Room("idle"); !ok {
		t.Fatal("room with a live connection was reaped")
	}

	r.Release()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle room still running")
	}
	if _, ok := m.Room("idle"); ok {
		t.Fatal("idle room still registered")
	}
	if again := m.Acquire("idle"); again == r {
		t.Fatal("Acquire returned the reaped room")
	} else {
		again.Release()
	}
}

func TestRoomWithPlayersIsNotReaped(t *testing.T) {
	m := NewRoomManager(RoomConfig{SweepInterval: 10 * time.Millisecond, InactivityTimeout: time.Minute}, NewMemoryStore(), time.Now, zap.NewNop().Sugar())
	defer m.StopAll()

	r := m.Acquire("busy")
	r.OnInput(Input{Conn: &fakeConn{id: "c1"}, Msg: protocol.Join("p1", "alice", "")})
	r.Release()
	time.Sleep(80 * time.Millisecond)
	if _, ok := m.Room("busy"); !ok {
		t.Fatal("room with a joined player was reaped")
	}
}
