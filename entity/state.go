package entity

import (
	"math"
	"time"
)

// State 稀疏状态：只携带存在的字段，用于状态同步
// 不包含 id / ownership / velocity
type State struct {
	Name                  *string  `json:"name,omitempty"`
	X                     *float64 `json:"x,omitempty"`
	Y                     *float64 `json:"y,omitempty"`
	Health                *float64 `json:"health,omitempty"`
	MaxHealth             *float64 `json:"maxHealth,omitempty"`
	Level                 *int     `json:"level,omitempty"`
	Experience            *int     `json:"experience,omitempty"`
	ExperienceToNextLevel *int     `json:"experienceToNextLevel,omitempty"`
	AttackDamage          *float64 `json:"attackDamage,omitempty"`
	AttackCooldown        *int     `json:"attackCooldown,omitempty"`
	AttackRate            *int     `json:"attackRate,omitempty"`
	AttackRange           *float64 `json:"attackRange,omitempty"`
	IsDead                *bool    `json:"isDead,omitempty"`
	Color                 *string  `json:"color,omitempty"`
	LastUpdate            *int64   `json:"lastUpdate,omitempty"` // unix 毫秒
}

// Snapshot 完整状态（带 id），用于 playersList / remotePlayerAdded 等
type Snapshot struct {
	ID string `json:"id"`
	State
}

// Ptr 构造稀疏字段
func Ptr[T any](v T) *T { return &v }

// IsEmpty 没有任何字段
func (s State) IsEmpty() bool {
	return s == State{}
}

// Merge 将 o 中存在的字段覆盖到 s，缺省字段保持不变
func (s *State) Merge(o State) {
	if o.Name != nil {
		s.Name = Ptr(*o.Name)
	}
	if o.X != nil {
		s.X = Ptr(*o.X)
	}
	if o.Y != nil {
		s.Y = Ptr(*o.Y)
	}
	if o.Health != nil {
		s.Health = Ptr(*o.Health)
	}
	if o.MaxHealth != nil {
		s.MaxHealth = Ptr(*o.MaxHealth)
	}
	if o.Level != nil {
		s.Level = Ptr(*o.Level)
	}
	if o.Experience != nil {
		s.Experience = Ptr(*o.Experience)
	}
	if o.ExperienceToNextLevel != nil {
		s.ExperienceToNextLevel = Ptr(*o.ExperienceToNextLevel)
	}
	if o.AttackDamage != nil {
		s.AttackDamage = Ptr(*o.AttackDamage)
	}
	if o.AttackCooldown != nil {
		s.AttackCooldown = Ptr(*o.AttackCooldown)
	}
	if o.AttackRate != nil {
		s.AttackRate = Ptr(*o.AttackRate)
	}
	if o.AttackRange != nil {
		s.AttackRange = Ptr(*o.AttackRange)
	}
	if o.IsDead != nil {
		s.IsDead = Ptr(*o.IsDead)
	}
	if o.Color != nil {
		s.Color = Ptr(*o.Color)
	}
	if o.LastUpdate != nil {
		s.LastUpdate = Ptr(*o.LastUpdate)
	}
}

// Serialize 导出全部可同步字段
func (e *Entity) Serialize() State {
	s := State{
		Name:                  Ptr(e.Name),
		X:                     Ptr(e.Pos.X),
		Y:                     Ptr(e.Pos.Y),
		Health:                Ptr(e.Health),
		MaxHealth:             Ptr(e.MaxHealth),
		Level:                 Ptr(e.Level),
		Experience:            Ptr(e.Experience),
		ExperienceToNextLevel: Ptr(e.ExperienceToNext),
		AttackDamage:          Ptr(e.AttackDamage),
		AttackCooldown:        Ptr(e.AttackCooldown),
		AttackRate:            Ptr(e.AttackRate),
		AttackRange:           Ptr(e.AttackRange),
		IsDead:                Ptr(e.Dead),
		Color:                 Ptr(e.Color),
	}
	if !e.UpdatedAt.IsZero() {
		s.LastUpdate = Ptr(e.UpdatedAt.UnixMilli())
	}
	return s
}

// Snapshot 带 id 的完整状态
func (e *Entity) Snapshot() Snapshot {
	return Snapshot{ID: e.ID, State: e.Serialize()}
}

// ApplyState 以单次合并写入 s 中存在的字段，缺省字段不会被重置
// 死亡是单向的：isDead=false 不会复活，死亡实体的血量保持为 0
// NaN / Inf 与非正的 maxHealth 被忽略
func (e *Entity) ApplyState(s State) {
	if s.Name != nil {
		e.Name = *s.Name
	}
	if finite(s.X) {
		e.Pos.X = *s.X
	}
	if finite(s.Y) {
		e.Pos.Y = *s.Y
	}
	if finite(s.MaxHealth) && *s.MaxHealth > 0 {
		e.MaxHealth = *s.MaxHealth
		if e.Health > e.MaxHealth {
			e.Health = e.MaxHealth
		}
	}
	if finite(s.Health) && !e.Dead {
		e.Health = clamp(*s.Health, 0, e.MaxHealth)
	}
	if s.Level != nil && *s.Level > e.Level {
		e.Level = *s.Level
	}
	if s.Experience != nil {
		e.Experience = *s.Experience
	}
	if s.ExperienceToNextLevel != nil {
		e.ExperienceToNext = *s.ExperienceToNextLevel
	}
	if finite(s.AttackDamage) {
		e.AttackDamage = *s.AttackDamage
	}
	if s.AttackCooldown != nil {
		e.AttackCooldown = *s.AttackCooldown
	}
	if s.AttackRate != nil {
		e.AttackRate = *s.AttackRate
	}
	if finite(s.AttackRange) {
		e.AttackRange = *s.AttackRange
	}
	if s.Color != nil {
		e.Color = *s.Color
	}
	if s.LastUpdate != nil {
		e.UpdatedAt = time.UnixMilli(*s.LastUpdate)
	}

	if (s.IsDead != nil && *s.IsDead) || e.Health == 0 {
		e.kill()
	}
}

// finite 字段存在且不是 NaN / Inf
func finite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
