package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrMissingType  = errors.New("message without type")
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("message missing required field")
)

// Encode 编码为中继使用的 JSON 文本
func Encode(m Message) ([]byte, error) {
	if m.Type == "" {
		return nil, ErrMissingType
	}
	return json.Marshal(m)
}

// Decode 解析中继 JSON 文本：先用 gjson 探测 type，再完整反序列化并校验必填字段
func Decode(b []byte) (Message, error) {
	if len(b) == 0 || !gjson.ValidBytes(b) {
		return Message{}, ErrMalformed
	}
	t := gjson.GetBytes(b, "type")
	if !t.Exists() || t.Type != gjson.String || t.Str == "" {
		return Message{}, ErrMissingType
	}
	if !Known(t.Str) {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, t.Str)
	}
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Known 是否为已定义的消息类型
func Known(t string) bool {
	switch t {
	case TypePlayerJoined, TypePlayersList, TypeStateUpdate, TypeHeartbeat,
		TypeRemotePlayerAdded, TypeRemotePlayerUpdated, TypePlayerRemoved, TypePlayerLeft:
		return true
	}
	return false
}

// Validate 按类型检查必填字段
func (m Message) Validate() error {
	if m.Type == "" {
		return ErrMissingType
	}
	if !Known(m.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	if m.Type != TypePlayersList && m.PlayerID == "" {
		return fmt.Errorf("%w: %s.playerId", ErrMissingField, m.Type)
	}
	switch m.Type {
	case TypeStateUpdate:
		if m.State == nil {
			return fmt.Errorf("%w: %s.state", ErrMissingField, m.Type)
		}
	case TypeRemotePlayerAdded:
		if m.PlayerData == nil {
			return fmt.Errorf("%w: %s.playerData", ErrMissingField, m.Type)
		}
	case TypeRemotePlayerUpdated:
		if m.Player == nil {
			return fmt.Errorf("%w: %s.player", ErrMissingField, m.Type)
		}
	case TypePlayersList:
		for i, p := range m.Players {
			if p.ID == "" {
				return fmt.Errorf("%w: %s.players[%d].id", ErrMissingField, m.Type, i)
			}
		}
	}
	return nil
}

// EncodeEnvelope 本地广播信封使用 msgpack，每个订阅者各自解码得到独立副本
func EncodeEnvelope(env Envelope) ([]byte, error) {
	if env.Type == "" {
		env.Type = env.Data.Type
	}
	return msgpack.Marshal(&env)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, ErrMalformed
	}
	var env Envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.FromPlayerID == "" {
		return Envelope{}, fmt.Errorf("%w: fromPlayerId", ErrMissingField)
	}
	if err := env.Data.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
