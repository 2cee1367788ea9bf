package entity

// ApplyDamage 扣血并钳制在 0；血量归零时进入死亡并开始倒计时
// 已死亡时静默忽略，返回本次是否致死
func (e *Entity) ApplyDamage(amount float64) bool {
	if e.Dead || !(amount > 0) {
		return false
	}
	e.Health -= amount
	if e.Health <= 0 {
		e.kill()
		return true
	}
	e.HitTimer = HitTicks
	return false
}

// Heal 回血，钳制在 MaxHealth；死亡实体不处理
func (e *Entity) Heal(amount float64) {
	if e.Dead || !(amount > 0) {
		return
	}
	e.Health += amount
	if e.Health > e.MaxHealth {
		e.Health = e.MaxHealth
	}
}

// GrantExperience 增加经验并循环升级，返回升级次数
// 阈值随等级递增且至少为 BaseExperience，循环必然终止
func (e *Entity) GrantExperience(amount int) int {
	if e.Kind == KindEnemy || e.Dead || amount <= 0 {
		return 0
	}
	if e.ExperienceToNext < BaseExperience {
		e.ExperienceToNext = BaseExperience * max(e.Level, 1)
	}
	e.Experience += amount
	levels := 0
	for e.Experience >= e.ExperienceToNext {
		e.Experience -= e.ExperienceToNext
		e.levelUp()
		levels++
	}
	return levels
}

func (e *Entity) levelUp() {
	e.Level++
	e.ExperienceToNext = BaseExperience * e.Level
	e.AttackDamage *= DamageGrowth
	e.MaxHealth = maxHealthFor(e.Level)
	e.Health = e.MaxHealth
}

// AttemptAttack 冷却结束且目标在射程内时造成伤害并重置冷却
// 自身或目标死亡、冷却中、超出射程均返回 false（不是错误）
func (e *Entity) AttemptAttack(target *Entity) bool {
	if target == nil || e.Dead || target.Dead || e.AttackCooldown > 0 {
		return false
	}
	if e.Pos.Dist(target.Pos) > e.AttackRange {
		return false
	}
	target.ApplyDamage(e.AttackDamage)
	e.AttackCooldown = e.AttackRate
	return true
}

// TickCooldowns 每个模拟步调用一次
func (e *Entity) TickCooldowns() {
	if e.AttackCooldown > 0 {
		e.AttackCooldown--
	}
	if e.HitTimer > 0 {
		e.HitTimer--
	}
}

// Hit 是否处于受击表现期
func (e *Entity) Hit() bool {
	return e.HitTimer > 0
}

// AdvanceDeath 推进死亡倒计时，返回倒计时是否结束
func (e *Entity) AdvanceDeath(dt int) bool {
	if !e.Dead {
		return false
	}
	e.DeathTimer -= dt
	return e.DeathTimer <= 0
}

func (e *Entity) kill() {
	if e.Dead {
		return
	}
	e.Health = 0
	e.Dead = true
	e.DeathTimer = DeathTicks
	e.HitTimer = 0
}
