package game

import "arenasync/entity"

// 保持在攻击距离边缘：太近后撤，太远逼近
const (
	botKeepOut = entity.PlayerRadius + entity.EnemyRadius + 10
	botKeepIn  = entity.PlayerAttackRange - 5
)

// BotInput 无人值守的对端使用的简单走位策略
func BotInput(s *Session) Input {
	target := s.nearestEnemy()
	if target == nil {
		return Input{}
	}
	d := target.Pos.Sub(s.player.Pos)
	switch dist := d.Len(); {
	case dist < botKeepOut:
		return Input{Dx: -d.X, Dy: -d.Y}
	case dist > botKeepIn:
		return Input{Dx: d.X, Dy: d.Y}
	}
	// 绕目标横移
	return Input{Dx: -d.Y, Dy: d.X}
}
