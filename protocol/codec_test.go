package protocol

import (
	"errors"
	"testing"

	"arenasync/entity"
)

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", ``, ErrMalformed},
		{"not json", `{"type":`, ErrMalformed},
		{"no type", `{"playerId":"p1"}`, ErrMissingType},
		{"numeric type", `{"type":7}`, ErrMissingType},
		{"unknown type", `{"type":"teleport","playerId":"p1"}`, ErrUnknownType},
		{"join without id", `{"type":"playerJoined","playerName":"a"}`, ErrMissingField},
		{"state update without state", `{"type":"stateUpdate","playerId":"p1"}`, ErrMissingField},
		{"added without data", `{"type":"remotePlayerAdded","playerId":"p1"}`, ErrMissingField},
		{"updated without player", `{"type":"remotePlayerUpdated","playerId":"p1"}`, ErrMissingField},
		{"list entry without id", `{"type":"playersList","players":[{"x":1}]}`, ErrMissingField},
		{"wrong field type", `{"type":"stateUpdate","playerId":"p1","state":{"x":"far"}}`, ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode(%q) error = %v, want %v", tt.in, err, tt.want)
			}
		})
	}
}

func TestDecodeStateUpdateKeepsSparseFields(t *testing.T) {
	m, err := Decode([]byte(`{"type":"stateUpdate","playerId":"p1","state":{"x":5,"health":10}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.State == nil || m.State.X == nil || *m.State.X != 5 || *m.State.Health != 10 {
		t.Fatalf("state = %+v", m.State)
	}
	if m.State.Y != nil || m.State.Level != nil || m.State.IsDead != nil {
		t.Fatalf("omitted fields must stay nil: %+v", m.State)
	}
}

func TestEncodeOmitsAbsentFields(t *testing.T) {
	b, err := Encode(StateUpdate("p1", entity.State{Health: entity.Ptr(0.0)}))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"type":"stateUpdate","playerId":"p1","state":{"health":0}}`
	if string(b) != want {
		t.Fatalf("encoded %s, want %s", b, want)
	}
	if _, err := Encode(Message{}); !errors.Is(err, ErrMissingType) {
		t.Fatalf("encode without type: %v", err)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	snap := entity.NewPlayer("p2", "bob", "#fff", entity.Remote).Snapshot()
	in := Envelope{
		Data:         PlayersList([]entity.Snapshot{snap}),
		FromPlayerID: "p1",
		Timestamp:    42,
	}
	b, err := EncodeEnvelope(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Type != TypePlayersList || out.FromPlayerID != "p1" || out.Timestamp != 42 {
		t.Fatalf("envelope header = %+v", out)
	}
	if len(out.Data.Players) != 1 || out.Data.Players[0].ID != "p2" || *out.Data.Players[0].Name != "bob" {
		t.Fatalf("players = %+v", out.Data.Players)
	}
	if out.Data.Players[0].LastUpdate != nil {
		t.Fatalf("absent lastUpdate decoded as %v", *out.Data.Players[0].LastUpdate)
	}
}

func TestDecodeEnvelopeRequiresSender(t *testing.T) {
	b, err := EncodeEnvelope(Envelope{Data: Heartbeat("p1")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeEnvelope(b); !errors.Is(err, ErrMissingField) {
		t.Fatalf("decode without sender: %v", err)
	}
}
