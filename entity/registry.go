package entity

import "sort"

// Registry 以 id 为键的实体集合；单线程使用，由持有者负责串行化
type Registry struct {
	entities map[string]*Entity
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*Entity)}
}

// Register 插入或覆盖
func (r *Registry) Register(e *Entity) {
	if old, ok := r.entities[e.ID]; ok && old != e {
		old.Release()
	}
	r.entities[e.ID] = e
}

// Unregister 释放表现资源并移除，不存在时返回 false
func (r *Registry) Unregister(id string) bool {
	e, ok := r.entities[id]
	if !ok {
		return false
	}
	e.Release()
	delete(r.entities, id)
	return true
}

func (r *Registry) Get(id string) (*Entity, bool) {
	e, ok := r.entities[id]
	return e, ok
}

func (r *Registry) Len() int { return len(r.entities) }

// All 按 id 排序返回全部实体
func (r *Registry) All() []*Entity {
	return r.filter(func(*Entity) bool { return true })
}

// Active 存活实体
func (r *Registry) Active() []*Entity {
	return r.filter(func(e *Entity) bool { return !e.Dead })
}

// Dead 处于死亡倒计时的实体
func (r *Registry) Dead() []*Entity {
	return r.filter(func(e *Entity) bool { return e.Dead })
}

// AdvanceAll 推进 dt 个 Tick：死亡实体倒计时结束后移除，存活实体推进冷却与运动
// 返回本次移除的实体
func (r *Registry) AdvanceAll(dt int) []*Entity {
	var removed []*Entity
	for _, e := range r.All() {
		if e.Dead {
			if e.AdvanceDeath(dt) {
				r.Unregister(e.ID)
				removed = append(removed, e)
			}
			continue
		}
		for i := 0; i < dt; i++ {
			e.TickCooldowns()
		}
		e.IntegrateMotion(float64(dt))
	}
	return removed
}

// Clear 移除全部实体
func (r *Registry) Clear() {
	for id := range r.entities {
		r.Unregister(id)
	}
}

func (r *Registry) filter(keep func(*Entity) bool) []*Entity {
	out := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
