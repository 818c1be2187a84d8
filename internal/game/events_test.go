package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameEvent_JSONRoundTrip(t *testing.T) {
	ev := NewEvent(MoveFailed{
		PlayerID:   "abc",
		PlayerName: "ana",
		Number:     42,
		LivesLost:  1,
		Lives:      2,
	})

	b, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded GameEvent
	require.NoError(t, json.Unmarshal(b, &decoded))

	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, EventMoveFailed, decoded.Type)
	payload, ok := decoded.Payload.(MoveFailed)
	require.True(t, ok, "payload type must match the tag")
	assert.Equal(t, 42, payload.Number)
	assert.Equal(t, 1, payload.LivesLost)
}

func TestGameEvent_WireShape(t *testing.T) {
	ev := NewEvent(GameEnded{Result: "victory", Message: "done"})

	b, err := json.Marshal(ev)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Contains(t, raw, "id")
	assert.Contains(t, raw, "type")
	assert.Contains(t, raw, "data")
	assert.Contains(t, raw, "timestamp")

	var data map[string]any
	require.NoError(t, json.Unmarshal(raw["data"], &data))
	assert.Equal(t, "victory", data["result"])
}

func TestGameEvent_UnknownTagRejected(t *testing.T) {
	var ev GameEvent
	err := json.Unmarshal([]byte(`{"id":"x","type":"mystery","data":{},"timestamp":0}`), &ev)
	assert.Error(t, err)
}
