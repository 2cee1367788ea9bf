package entity

import (
	"math"
	"time"
)

// Ownership 实体归属：每个进程恰好一个 Local 实体，其余玩家均为 Remote 镜像
type Ownership uint8

const (
	Local Ownership = iota
	Remote
)

func (o Ownership) String() string {
	if o == Local {
		return "local"
	}
	return "remote"
}

// Kind 区分玩家与敌人（敌人不升级、无身份）
type Kind uint8

const (
	KindPlayer Kind = iota
	KindEnemy
)

// 数值调参（以 Tick 为时间单位）
const (
	BaseExperience = 50  // 升级阈值 = BaseExperience * level
	DamageGrowth   = 1.2 // 每级攻击力倍率
	BaseMaxHealth  = 100
	HealthPerLevel = 20

	PlayerRadius      = 30
	PlayerAttack      = 10
	PlayerAttackRate  = 10 // Tick
	PlayerAttackRange = 80

	EnemyRadius      = 15
	EnemyHealth      = 30
	EnemyAttack      = 5
	EnemyAttackRate  = 20
	EnemyAttackRange = 50

	DeathTicks = 20 // 死亡动画倒计时
	HitTicks   = 4  // 受击闪烁（表现层使用）
)

// Palette 未指定颜色时由 PickColor 从中取色
var Palette = []string{"#e74c3c", "#3498db", "#2ecc71", "#f1c40f", "#9b59b6", "#1abc9c", "#e67e22", "#ecf0f1"}

// Vec2 世界坐标系下的二维向量
type Vec2 struct {
	X float64
	Y float64
}

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{v.X + o.X, v.Y + o.Y} }
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{v.X - o.X, v.Y - o.Y} }
func (v Vec2) Scale(k float64) Vec2 { return Vec2{v.X * k, v.Y * k} }
func (v Vec2) Len() float64 { return math.Hypot(v.X, v.Y) }
func (v Vec2) Dist(o Vec2) float64 { return v.Sub(o).Len() }

// Normalize 返回单位向量，零向量原样返回
func (v Vec2) Normalize() Vec2 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Releaser 表现层资源（精灵、纹理等），实体销毁时释放
type Releaser interface {
	Release()
}

// Entity 玩家或敌人的模拟状态
type Entity struct {
	ID        string
	Name      string
	Kind      Kind
	Ownership Ownership

	Pos    Vec2
	Vel    Vec2
	Radius float64

	Health    float64
	MaxHealth float64

	Level            int
	Experience       int
	ExperienceToNext int

	AttackDamage   float64
	AttackCooldown int
	AttackRate     int
	AttackRange    float64

	Dead       bool
	DeathTimer int
	HitTimer   int

	// XPReward 击杀该实体获得的经验（仅敌人使用）
	XPReward int

	Color     string
	UpdatedAt time.Time

	Visual Releaser
}

// NewPlayer 创建玩家实体，color 为空时按 id 从调色板取色
func NewPlayer(id, name, color string, own Ownership) *Entity {
	if color == "" {
		color = PickColor(id)
	}
	return &Entity{
		ID:               id,
		Name:             name,
		Kind:             KindPlayer,
		Ownership:        own,
		Radius:           PlayerRadius,
		Health:           BaseMaxHealth,
		MaxHealth:        BaseMaxHealth,
		Level:            1,
		ExperienceToNext: BaseExperience,
		AttackDamage:     PlayerAttack,
		AttackRate:       PlayerAttackRate,
		AttackRange:      PlayerAttackRange,
		Color:            color,
	}
}

// NewEnemy 创建敌人（本地模拟的 NPC）
func NewEnemy(id string, pos Vec2, healthScale float64) *Entity {
	hp := EnemyHealth * healthScale
	return &Entity{
		ID:           id,
		Name:         "enemy",
		Kind:         KindEnemy,
		Ownership:    Remote,
		Pos:          pos,
		Radius:       EnemyRadius,
		Health:       hp,
		MaxHealth:    hp,
		Level:        1,
		AttackDamage: EnemyAttack,
		AttackRate:   EnemyAttackRate,
		AttackRange:  EnemyAttackRange,
		XPReward:     10,
		Color:        "#c0392b",
	}
}

// PickColor 由 id 稳定映射到调色板
func PickColor(id string) string {
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}
	return Palette[int(h%uint32(len(Palette)))]
}

// Simulated 是否由本进程推进运动（本地玩家与敌人）
func (e *Entity) Simulated() bool {
	return e.Ownership == Local || e.Kind == KindEnemy
}

// Touch 刷新最后更新时间（用于不活跃剔除）
func (e *Entity) Touch(now time.Time) {
	e.UpdatedAt = now
}

// Release 释放表现层资源，可重复调用
func (e *Entity) Release() {
	if e.Visual != nil {
		e.Visual.Release()
		e.Visual = nil
	}
}

// Clone 返回不共享表现资源的副本
func (e *Entity) Clone() *Entity {
	c := *e
	c.Visual = nil
	return &c
}

func maxHealthFor(level int) float64 {
	return float64(BaseMaxHealth + HealthPerLevel*(level-1))
}
