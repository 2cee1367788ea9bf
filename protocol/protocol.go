package protocol

import "arenasync/entity"

// 消息类型（JSON 中的 type 字段）
const (
	TypePlayerJoined        = "playerJoined"        // client→relay, relay→other clients, 本地广播
	TypePlayersList         = "playersList"         // relay→新加入者
	TypeStateUpdate         = "stateUpdate"         // client→relay→other clients, 本地广播
	TypeHeartbeat           = "heartbeat"           // client→relay, 本地广播
	TypeRemotePlayerAdded   = "remotePlayerAdded"   // relay→clients
	TypeRemotePlayerUpdated = "remotePlayerUpdated" // relay→clients
	TypePlayerRemoved       = "playerRemoved"       // relay→clients
	TypePlayerLeft          = "playerLeft"          // client→relay, 本地广播的离开通知
)

// Message 中继与本地广播共用的扁平消息体，按 Type 使用不同字段
type Message struct {
	Type       string            `json:"type" msgpack:"type"`
	PlayerID   string            `json:"playerId,omitempty" msgpack:"playerId,omitempty"`
	PlayerName string            `json:"playerName,omitempty" msgpack:"playerName,omitempty"`
	Color      string            `json:"color,omitempty" msgpack:"color,omitempty"`
	State      *entity.State     `json:"state,omitempty" msgpack:"state,omitempty"`
	Players    []entity.Snapshot `json:"players,omitempty" msgpack:"players,omitempty"`
	PlayerData *entity.Snapshot  `json:"playerData,omitempty" msgpack:"playerData,omitempty"`
	Player     *entity.Snapshot  `json:"player,omitempty" msgpack:"player,omitempty"`
}

// Envelope 本地广播的信封：{type, data, fromPlayerId, timestamp}
type Envelope struct {
	Type         string  `json:"type" msgpack:"type"`
	Data         Message `json:"data" msgpack:"data"`
	FromPlayerID string  `json:"fromPlayerId" msgpack:"fromPlayerId"`
	Timestamp    int64   `json:"timestamp" msgpack:"timestamp"`
}

func Join(id, name, color string) Message {
	return Message{Type: TypePlayerJoined, PlayerID: id, PlayerName: name, Color: color}
}

func StateUpdate(id string, s entity.State) Message {
	return Message{Type: TypeStateUpdate, PlayerID: id, State: &s}
}

func Heartbeat(id string) Message {
	return Message{Type: TypeHeartbeat, PlayerID: id}
}

func Leave(id string) Message {
	return Message{Type: TypePlayerLeft, PlayerID: id}
}

func PlayersList(players []entity.Snapshot) Message {
	if players == nil {
		players = []entity.Snapshot{}
	}
	return Message{Type: TypePlayersList, Players: players}
}

func RemoteAdded(id string, snap entity.Snapshot) Message {
	return Message{Type: TypeRemotePlayerAdded, PlayerID: id, PlayerData: &snap}
}

func RemoteUpdated(id string, snap entity.Snapshot) Message {
	return Message{Type: TypeRemotePlayerUpdated, PlayerID: id, Player: &snap}
}

func Removed(id string) Message {
	return Message{Type: TypePlayerRemoved, PlayerID: id}
}
