package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"arenasync/entity"
)

const defaultRoom = "circle-arena"

func roomParam(r *http.Request) string {
	if id := r.URL.Query().Get("room"); id != "" {
		return id
	}
	return defaultRoom
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 提供房间参数的读取与热更新
// GET /admin/config?room=circle-arena  返回当前配置
// POST /admin/config?room=circle-arena 以 JSON 载荷更新部分字段
func (s *Server) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	roomID := roomParam(r)
	room, ok := s.rooms.Room(roomID)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}

	type cfg struct {
		SweepIntervalMs     *int64 `json:"sweepIntervalMs,omitempty"`
		InactivityTimeoutMs *int64 `json:"inactivityTimeoutMs,omitempty"`
	}

	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	q := configQuery{reply: make(chan RoomConfig, 1)}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		cur, err := room.query(ctx, q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if body.SweepIntervalMs != nil {
			if *body.SweepIntervalMs <= 0 {
				http.Error(w, "sweepIntervalMs must be positive", http.StatusBadRequest)
				return
			}
			cur.SweepInterval = time.Duration(*body.SweepIntervalMs) * time.Millisecond
		}
		if body.InactivityTimeoutMs != nil {
			if *body.InactivityTimeoutMs <= 0 {
				http.Error(w, "inactivityTimeoutMs must be positive", http.StatusBadRequest)
				return
			}
			cur.InactivityTimeout = time.Duration(*body.InactivityTimeoutMs) * time.Millisecond
		}
		q = configQuery{update: &cur, reply: make(chan RoomConfig, 1)}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cur, err := room.query(ctx, q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if q.update != nil {
		s.log.Infow("config updated", "room", roomID, "sweepInterval", cur.SweepInterval.String(), "inactivityTimeout", cur.InactivityTimeout.String())
	}
	writeJSON(w, http.StatusOK, cfg{
		SweepIntervalMs:     entity.Ptr(cur.SweepInterval.Milliseconds()),
		InactivityTimeoutMs: entity.Ptr(cur.InactivityTimeout.Milliseconds()),
	})
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=circle-arena
func (s *Server) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	roomID := roomParam(r)
	room, ok := s.rooms.Room(roomID)
	if !ok {
		http.Error(w, "unknown room", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    roomID,
		"metrics": room.Metrics().Snapshot(),
	})
}

// HandlePlayers 输出 store 中保存的玩家快照
// GET /admin/players?room=circle-arena
func (s *Server) HandlePlayers(w http.ResponseWriter, r *http.Request) {
	roomID := roomParam(r)
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()
	players, err := s.store.List(ctx, roomID)
	if err != nil {
		s.log.Warnw("list players failed", "room", roomID, "err", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    roomID,
		"players": players,
	})
}

// query 通过房间协程读取或更新配置
func (r *Room) query(ctx context.Context, q configQuery) (RoomConfig, error) {
	select {
	case r.Inbox <- q:
	case <-ctx.Done():
		return RoomConfig{}, ctx.Err()
	}
	select {
	case cfg := <-q.reply:
		return cfg, nil
	case <-ctx.Done():
		return RoomConfig{}, ctx.Err()
	}
}
