package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMoveVariants(t *testing.T) {
	mv, err := ParseMove(json.RawMessage(`{"type":"capture","card":"7S","targets":["7D"]}`))
	require.NoError(t, err)
	require.Equal(t, MoveCapture, mv.Type)

	mv, err = ParseMove(json.RawMessage(`{"type":"build","table_cards":["4S","5D"],"value":9}`))
	require.NoError(t, err)
	require.Equal(t, MoveBuild, mv.Type)
	require.Empty(t, mv.Card)

	mv, err = ParseMove(json.RawMessage(`{"type":"trail","card":"2C"}`))
	require.NoError(t, err)
	require.Equal(t, MoveTrail, mv.Type)
}

func TestParseMoveRejectsStructurallyInvalidPayloads(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"unknown type", `{"type":"steal","card":"7S"}`},
		{"capture without card", `{"type":"capture","targets":["7D"]}`},
		{"capture without targets", `{"type":"capture","card":"7S"}`},
		{"build without value", `{"type":"build","card":"5H","table_cards":["4S"]}`},
		{"build without cards", `{"type":"build","value":9}`},
		{"trail without card", `{"type":"trail"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMove(json.RawMessage(tc.raw))
			var rej *RejectError
			require.ErrorAs(t, err, &rej)
		})
	}
}
