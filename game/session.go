package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"arenasync/entity"
	"arenasync/logger"
	"arenasync/peer"
)

var ErrGameOver = errors.New("game over")

// Input 一个 Tick 的移动意图，长度不为 0 时按 PlayerSpeed 归一化
type Input struct {
	Dx float64
	Dy float64
}

// Session 单机玩法循环：本地玩家、逐波生成的追踪敌人、自动攻击与碰撞，
// 并通过同步管理器把本地玩家状态发给其他对端
type Session struct {
	mgr     *peer.Manager
	player  *entity.Entity
	enemies *entity.Registry
	rng     *rand.Rand
	log     *zap.SugaredLogger

	tick      int
	wave      int
	nextEnemy int
	kills     int
	over      bool
}

// NewSession 初始化管理器并把本地玩家放在世界中心
func NewSession(mgr *peer.Manager, seed int64) (*Session, error) {
	id, err := mgr.Initialize()
	if err != nil {
		return nil, fmt.Errorf("initialize peer: %w", err)
	}
	player := mgr.LocalEntity()
	player.Pos = entity.Vec2{X: WorldWidth / 2, Y: WorldHeight / 2}

	s := &Session{
		mgr:     mgr,
		player:  player,
		enemies: entity.NewRegistry(),
		rng:     rand.New(rand.NewSource(seed)),
		log:     logger.Named("game").With("player", id),
	}
	if err := s.publish(); err != nil {
		return nil, err
	}
	return s, nil
}

// Step 推进一个 Tick：同步收发、移动与出怪、战斗、敌人运动与死亡倒计时、碰撞、状态广播
func (s *Session) Step(now time.Time, in Input) error {
	s.mgr.Advance(now)
	if s.over {
		return ErrGameOver
	}
	s.tick++

	s.movePlayer(in)
	if len(s.enemies.Active()) == 0 {
		s.spawnWave()
	}

	leveled := false
	for _, e := range s.enemies.Active() {
		e.Vel = s.player.Pos.Sub(e.Pos).Normalize().Scale(EnemySpeed)
		e.AttemptAttack(s.player)
	}
	if s.player.Dead {
		s.over = true
		s.log.Infow("game over", "wave", s.wave, "kills", s.kills, "level", s.player.Level, "ticks", s.tick)
		if err := s.publish(); err != nil {
			return err
		}
		return ErrGameOver
	}

	if target := s.nearestEnemy(); target != nil && s.player.AttemptAttack(target) && target.Dead {
		s.kills++
		if n := s.player.GrantExperience(target.XPReward); n > 0 {
			leveled = true
			s.log.Infow("level up", "level", s.player.Level, "attackDamage", s.player.AttackDamage, "maxHealth", s.player.MaxHealth)
		}
	}

	s.enemies.AdvanceAll(1)
	s.player.TickCooldowns()
	s.resolveCollisions()

	if leveled || s.tick%PublishEveryTicks == 0 {
		return s.publish()
	}
	return nil
}

// Run 按管理器的 Tick 间隔循环，直到 ctx 结束或游戏结束
func (s *Session) Run(ctx context.Context, input func(*Session) Input) error {
	ticker := time.NewTicker(peer.AdvanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.Step(now, input(s)); err != nil {
				return err
			}
		}
	}
}

func (s *Session) movePlayer(in Input) {
	dir := entity.Vec2{X: in.Dx, Y: in.Dy}.Normalize()
	s.player.Vel = dir.Scale(PlayerSpeed)
	s.player.IntegrateMotion(1)
	clampToWorld(s.player)
}

func (s *Session) spawnWave() {
	s.wave++
	n := WaveBase + WaveGrowth*(s.wave-1)
	scale := 1 + WaveHealthGrowth*float64(s.wave-1)
	for i := 0; i < n; i++ {
		a := s.rng.Float64() * 2 * math.Pi
		pos := s.player.Pos.Add(entity.Vec2{X: math.Cos(a), Y: math.Sin(a)}.Scale(SpawnRadius))
		s.nextEnemy++
		e := entity.NewEnemy(fmt.Sprintf("enemy_%d", s.nextEnemy), pos, scale)
		clampToWorld(e)
		s.enemies.Register(e)
	}
	s.log.Debugw("wave spawned", "wave", s.wave, "enemies", n)
}

func (s *Session) nearestEnemy() *entity.Entity {
	var best *entity.Entity
	bestDist := math.Inf(1)
	for _, e := range s.enemies.Active() {
		if d := s.player.Pos.Dist(e.Pos); d < bestDist {
			best, bestDist = e, d
		}
	}
	return best
}

// resolveCollisions 玩家把敌人推开（玩家不动），敌人之间各让一半
func (s *Session) resolveCollisions() {
	active := s.enemies.Active()
	for _, e := range active {
		s.player.ResolveOverlap(e, 1)
	}
	for i := 0; i < len(active); i++ {
		for j := i + 1; j < len(active); j++ {
			active[i].ResolveOverlap(active[j], EnemySeparation)
		}
	}
}

func (s *Session) publish() error {
	if err := s.mgr.PublishLocalState(s.player.Serialize()); err != nil {
		return fmt.Errorf("publish local state: %w", err)
	}
	return nil
}

func clampToWorld(e *entity.Entity) {
	e.Pos.X = math.Max(e.Radius, math.Min(WorldWidth-e.Radius, e.Pos.X))
	e.Pos.Y = math.Max(e.Radius, math.Min(WorldHeight-e.Radius, e.Pos.Y))
}

func (s *Session) Tick() int { return s.tick }
func (s *Session) Wave() int { return s.wave }
func (s *Session) Kills() int { return s.kills }
func (s *Session) Over() bool { return s.over }

// Player 本地玩家副本
func (s *Session) Player() *entity.Entity { return s.player.Clone() }

// Enemies 存活与死亡倒计时中的敌人副本
func (s *Session) Enemies() []*entity.Entity {
	all := s.enemies.All()
	out := make([]*entity.Entity, len(all))
	for i, e := range all {
		out[i] = e.Clone()
	}
	return out
}

// Peers 对端玩家
func (s *Session) Peers() []*entity.Entity { return s.mgr.RemoteEntities() }
