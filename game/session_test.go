package game

import (
	"errors"
	"testing"
	"time"

	"arenasync/broadcast"
	"arenasync/config"
	"arenasync/entity"
	"arenasync/peer"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func newSession(t *testing.T, hub *broadcast.Hub, seed int64) *Session {
	t.Helper()
	m, err := peer.NewManager(config.DefaultPeer(), peer.WithHub(hub), peer.WithClock(func() time.Time { return t0 }))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Shutdown)
	s, err := NewSession(m, seed)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewSessionPublishesSpawn(t *testing.T) {
	s := newSession(t, broadcast.NewHub(), 1)
	local := s.mgr.LocalEntity()
	if local.Pos.X != WorldWidth/2 || local.Pos.Y != WorldHeight/2 {
		t.Fatalf("published spawn = %+v", local.Pos)
	}
}

func TestFirstStepSpawnsWave(t *testing.T) {
	s := newSession(t, broadcast.NewHub(), 1)
	if err := s.Step(t0, Input{}); err != nil {
		t.Fatal(err)
	}
	if s.Wave() != 1 {
		t.Fatalf("wave = %d", s.Wave())
	}
	if n := len(s.Enemies()); n != WaveBase {
		t.Fatalf("enemies = %d, want %d", n, WaveBase)
	}
	for _, e := range s.Enemies() {
		if e.Kind != entity.KindEnemy {
			t.Fatalf("non-enemy in wave: %+v", e)
		}
	}
}

func TestWavesAreDeterministicPerSeed(t *testing.T) {
	a := newSession(t, broadcast.NewHub(), 42)
	b := newSession(t, broadcast.NewHub(), 42)
	for i := 0; i < 10; i++ {
		_ = a.Step(t0, Input{Dx: 1})
		_ = b.Step(t0, Input{Dx: 1})
	}
	ea, eb := a.Enemies(), b.Enemies()
	if len(ea) != len(eb) {
		t.Fatalf("enemy counts differ: %d vs %d", len(ea), len(eb))
	}
	for i := range ea {
		if ea[i].Pos != eb[i].Pos {
			t.Fatalf("enemy %s at %+v vs %+v", ea[i].ID, ea[i].Pos, eb[i].Pos)
		}
	}
}

func TestKillGrantsExperience(t *testing.T) {
	s := newSession(t, broadcast.NewHub(), 1)
	weak := entity.NewEnemy("enemy_weak", s.player.Pos.Add(entity.Vec2{X: 60}), 0.1)
	s.enemies.Register(weak)

	if err := s.Step(t0, Input{}); err != nil {
		t.Fatal(err)
	}
	if s.Kills() != 1 || !weak.Dead {
		t.Fatalf("kills = %d, enemy dead = %v", s.Kills(), weak.Dead)
	}
	if xp := s.Player().Experience; xp != weak.XPReward {
		t.Fatalf("experience = %d, want %d", xp, weak.XPReward)
	}
	for i := 0; i < entity.DeathTicks; i++ {
		_ = s.Step(t0, Input{})
	}
	if _, ok := s.enemies.Get("enemy_weak"); ok {
		t.Fatal("dead enemy not removed after its countdown")
	}
}

func TestEnemiesArePushedOffPlayer(t *testing.T) {
	s := newSession(t, broadcast.NewHub(), 1)
	e := entity.NewEnemy("enemy_close", s.player.Pos.Add(entity.Vec2{X: 10}), 100)
	s.enemies.Register(e)
	before := s.player.Pos

	if err := s.Step(t0, Input{}); err != nil {
		t.Fatal(err)
	}
	if s.player.Pos != before {
		t.Fatalf("player moved by collision: %+v -> %+v", before, s.player.Pos)
	}
	if d := s.player.Pos.Dist(e.Pos); d < s.player.Radius+e.Radius-1e-9 {
		t.Fatalf("enemy still overlapping: distance %v", d)
	}
}

func TestPlayerStaysInWorld(t *testing.T) {
	s := newSession(t, broadcast.NewHub(), 1)
	for i := 0; i < 400 && !s.Over(); i++ {
		_ = s.Step(t0, Input{Dx: -1, Dy: -1})
	}
	p := s.Player()
	if p.Pos.X < p.Radius || p.Pos.Y < p.Radius {
		t.Fatalf("player left the world: %+v", p.Pos)
	}
}

func TestGameOverPublishesDeath(t *testing.T) {
	hub := broadcast.NewHub()
	s := newSession(t, hub, 1)
	s.player.Health = 1
	s.enemies.Register(entity.NewEnemy("enemy_killer", s.player.Pos.Add(entity.Vec2{X: 40}), 1))

	if err := s.Step(t0, Input{}); !errors.Is(err, ErrGameOver) {
		t.Fatalf("Step = %v, want ErrGameOver", err)
	}
	if !s.Over() {
		t.Fatal("session not over")
	}
	if !s.mgr.LocalEntity().Dead {
		t.Fatal("death not published to the manager")
	}
	if err := s.Step(t0, Input{}); !errors.Is(err, ErrGameOver) {
		t.Fatalf("Step after game over = %v", err)
	}
}

func TestSessionsSeeEachOther(t *testing.T) {
	hub := broadcast.NewHub()
	a := newSession(t, hub, 1)
	b := newSession(t, hub, 2)
	for i := 0; i < 6; i++ {
		_ = a.Step(t0, BotInput(a))
		_ = b.Step(t0, BotInput(b))
	}
	a.mgr.Advance(t0)
	peers := a.Peers()
	if len(peers) != 1 || peers[0].ID != b.mgr.ID() {
		t.Fatalf("a sees %d peers", len(peers))
	}
	if peers[0].Pos != b.mgr.LocalEntity().Pos {
		t.Fatalf("mirror at %+v, b at %+v", peers[0].Pos, b.mgr.LocalEntity().Pos)
	}
}
