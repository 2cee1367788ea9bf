package entity

import (
	"math/rand"
	"testing"
	"time"
)

type fakeVisual struct{ released int }

func (f *fakeVisual) Release() { f.released++ }

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	v := &fakeVisual{}
	a := NewPlayer("a", "a", "", Remote)
	a.Visual = v
	r.Register(a)
	r.Register(NewPlayer("b", "b", "", Remote))

	if got, ok := r.Get("a"); !ok || got != a {
		t.Fatalf("Get(a) = %v, %v", got, ok)
	}
	if r.Len() != 2 || len(r.All()) != 2 {
		t.Fatalf("len = %d", r.Len())
	}
	if !r.Unregister("a") {
		t.Fatalf("Unregister(a) returned false")
	}
	if v.released != 1 {
		t.Fatalf("visual released %d times, want 1", v.released)
	}
	if r.Unregister("a") {
		t.Fatalf("second Unregister must be a no-op")
	}
	r.Clear()
	if r.Len() != 0 {
		t.Fatalf("Clear left %d entities", r.Len())
	}
}

func TestRegistryAdvanceAllRemovesDeadAfterCountdown(t *testing.T) {
	r := NewRegistry()
	alive := NewEnemy("alive", Vec2{}, 1)
	alive.Vel = Vec2{X: 2}
	alive.AttackCooldown = 3
	dead := NewEnemy("dead", Vec2{}, 1)
	dead.ApplyDamage(1000)
	r.Register(alive)
	r.Register(dead)

	if got := len(r.Dead()); got != 1 {
		t.Fatalf("Dead() = %d, want 1", got)
	}
	if got := len(r.Active()); got != 1 {
		t.Fatalf("Active() = %d, want 1", got)
	}

	var removed []*Entity
	for i := 0; i < DeathTicks; i++ {
		removed = append(removed, r.AdvanceAll(1)...)
	}
	if len(removed) != 1 || removed[0].ID != "dead" {
		t.Fatalf("removed = %v", removed)
	}
	if _, ok := r.Get("dead"); ok {
		t.Fatalf("dead entity still registered")
	}
	if alive.AttackCooldown != 0 {
		t.Fatalf("cooldown not ticked: %d", alive.AttackCooldown)
	}
	if alive.Pos.X != 2*DeathTicks {
		t.Fatalf("alive pos = %v, want %v", alive.Pos.X, 2*DeathTicks)
	}
}

func TestGenerateUniqueID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateUniqueID()
		if !ValidID(id) {
			t.Fatalf("invalid id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewIDDeterministic(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	a := NewID(now, rand.New(rand.NewSource(1)))
	b := NewID(now, rand.New(rand.NewSource(1)))
	if a != b {
		t.Fatalf("same seed produced %q and %q", a, b)
	}
	if a[:21] != "player_1700000000123_" {
		t.Fatalf("unexpected prefix in %q", a)
	}
	c := NewID(now, rand.New(rand.NewSource(2)))
	if a == c {
		t.Fatalf("different seeds produced the same id %q", a)
	}
}
