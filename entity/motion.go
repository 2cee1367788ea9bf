package entity

// IntegrateMotion 位置 += 速度 * speed，仅对本地模拟的实体生效
func (e *Entity) IntegrateMotion(speed float64) {
	if !e.Simulated() {
		return
	}
	e.Pos = e.Pos.Add(e.Vel.Scale(speed))
}

// Intersects 两圆心距离小于半径之和
func (e *Entity) Intersects(o *Entity) bool {
	return e.Pos.Dist(o.Pos) < e.Radius+o.Radius
}

// ResolveOverlap 沿圆心连线把两者推开，推开量 = 重叠深度 * push（1 为完全分离）
// 一方为 Local 时只移动另一方；双方都不权威时各让一半
// 返回是否发生了重叠
func (e *Entity) ResolveOverlap(o *Entity, push float64) bool {
	d := o.Pos.Sub(e.Pos)
	dist := d.Len()
	overlap := e.Radius + o.Radius - dist
	if overlap <= 0 {
		return false
	}
	n := Vec2{X: 1}
	if dist > 0 {
		n = d.Scale(1 / dist)
	}
	shift := overlap * push

	switch {
	case e.Ownership == Local && o.Ownership != Local:
		o.Pos = o.Pos.Add(n.Scale(shift))
	case o.Ownership == Local && e.Ownership != Local:
		e.Pos = e.Pos.Sub(n.Scale(shift))
	default:
		half := shift / 2
		e.Pos = e.Pos.Sub(n.Scale(half))
		o.Pos = o.Pos.Add(n.Scale(half))
	}
	return true
}
