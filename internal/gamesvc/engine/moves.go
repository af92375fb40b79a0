package engine

import (
	"encoding/json"
	"fmt"
)

type MoveType string

const (
	MoveCapture MoveType = "capture"
	MoveBuild   MoveType = "build"
	MoveTrail   MoveType = "trail"
)

// Move is the closed set of player actions. Exactly one variant applies,
// selected by Type; ParseMove checks the per-variant required fields before
// the rule engine ever sees the move.
type Move struct {
	Type MoveType `json:"type"`

	// Card is the hand card being played, by wire code. Empty only for a
	// build assembled purely from loose table cards.
	Card string `json:"card,omitempty"`

	// Capture fields.
	Targets      []string `json:"targets,omitempty"`       // loose table cards
	TargetBuilds []string `json:"target_builds,omitempty"` // build ids

	// Build fields.
	TableCards []string `json:"table_cards,omitempty"` // loose cards folded in
	BuildId    string   `json:"build_id,omitempty"`    // set when extending
	Value      int      `json:"value,omitempty"`       // declared capture value
}

// RejectError is the typed rejection for any illegal move. State, version
// and the action log are untouched when one is returned.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return e.Reason }

func reject(format string, args ...interface{}) *RejectError {
	return &RejectError{Reason: fmt.Sprintf(format, args...)}
}

// ParseMove decodes and structurally validates a raw move payload.
func ParseMove(raw json.RawMessage) (Move, error) {
	var mv Move
	if err := json.Unmarshal(raw, &mv); err != nil {
		return mv, reject("malformed move payload: %v", err)
	}

	switch mv.Type {
	case MoveCapture:
		if mv.Card == "" {
			return mv, reject("capture requires a hand card")
		}
		if len(mv.Targets) == 0 && len(mv.TargetBuilds) == 0 {
			return mv, reject("capture requires at least one target")
		}
	case MoveBuild:
		if mv.Value <= 0 {
			return mv, reject("build requires a declared value")
		}
		if mv.Card == "" && len(mv.TableCards) == 0 {
			return mv, reject("build requires a hand card or table cards")
		}
	case MoveTrail:
		if mv.Card == "" {
			return mv, reject("trail requires a hand card")
		}
	default:
		return mv, reject("unknown move type %q", mv.Type)
	}

	return mv, nil
}
