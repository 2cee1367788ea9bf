package server

import (
	"context"
	"time"
)

const (
	// flushInterval 玩家快照写入 store 的周期
	flushInterval = time.Second
	storeTimeout  = 2 * time.Second
)

// Run 房间主循环（单协程）：处理命令、周期剔除、周期落盘
func (r *Room) Run() {
	sweep := time.NewTicker(r.cfg.SweepInterval)
	flush := time.NewTicker(flushInterval)
	defer func() {
		sweep.Stop()
		flush.Stop()
		r.flush()
		for _, p := range r.players {
			p.Conn.Close()
		}
		r.Stop()
		close(r.done)
	}()

	interval := r.cfg.SweepInterval
	for {
		select {
		case <-r.quit:
			return
		case cmd := <-r.Inbox:
			r.handleCommand(cmd)
			if r.cfg.SweepInterval != interval {
				interval = r.cfg.SweepInterval
				sweep.Reset(interval)
			}
		case <-sweep.C:
			r.Sweep(r.now())
			if r.idle() && r.reap != nil && r.reap(r) {
				r.log.Infow("room idle, closing")
				return
			}
		case <-flush.C:
			r.flush()
		}
	}
}

// Stop 结束 Run；可重复调用
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Done Run 退出（已完成最后一次落盘并关闭全部连接）后关闭
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// flush 把变更过的快照写入 store，删除已离开的玩家
func (r *Room) flush() {
	if len(r.dirty) == 0 && len(r.removed) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	for pid := range r.removed {
		if err := r.store.Delete(ctx, r.ID, string(pid)); err != nil {
			r.log.Warnw("store delete failed", "player", pid, "err", err)
			continue
		}
		delete(r.removed, pid)
	}
	for pid := range r.dirty {
		p, ok := r.players[pid]
		if !ok {
			delete(r.dirty, pid)
			continue
		}
		if err := r.store.Save(ctx, r.ID, p.Snapshot()); err != nil {
			r.log.Warnw("store save failed", "player", pid, "err", err)
			continue
		}
		delete(r.dirty, pid)
	}
}
