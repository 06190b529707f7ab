package engine

import (
	"bytes"
	"encoding/json"
)

// Snapshot is the last authoritative game state produced by the rules engine
// running on the clients. The relay stores and forwards it without
// interpreting the board or the move log.
//
// Every field is optional: an absent field in a partial update means
// "unchanged" and a field sent as JSON null clears the stored value.
type Snapshot struct {
	Board       *string         `json:"board,omitempty"`
	MoveHistory json.RawMessage `json:"moveHistory,omitempty"`
	CurrentTurn *string         `json:"currentTurn,omitempty"`
	GameOver    *bool           `json:"gameOver,omitempty"`
	Winner      *string         `json:"winner,omitempty"`
	DrawReason  *string         `json:"drawReason,omitempty"`

	// Meaningful is set by the rules engine when the snapshot is worth pushing
	// to a joining peer. When absent, IsMeaningful falls back to field presence.
	Meaningful *bool `json:"meaningful,omitempty"`

	// cleared holds the fields a decoded update set to null.
	cleared field
}

type field uint8

const (
	fieldBoard field = 1 << iota
	fieldMoveHistory
	fieldCurrentTurn
	fieldGameOver
	fieldWinner
	fieldDrawReason
	fieldMeaningful
)

var fieldNames = map[string]field{
	"board":       fieldBoard,
	"moveHistory": fieldMoveHistory,
	"currentTurn": fieldCurrentTurn,
	"gameOver":    fieldGameOver,
	"winner":      fieldWinner,
	"drawReason":  fieldDrawReason,
	"meaningful":  fieldMeaningful,
}

// UnmarshalJSON decodes the fields as usual and remembers which ones were
// sent as an explicit null.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Snapshot(p)
	s.cleared = 0
	for name, f := range fieldNames {
		if v, ok := raw[name]; ok && !present(v) {
			s.cleared |= f
		}
	}
	if s.cleared&fieldMoveHistory != 0 {
		s.MoveHistory = nil
	}
	return nil
}

// Merge returns s with every field present in partial overwritten
// (last write wins per field). Fields partial sets to null are cleared.
func (s Snapshot) Merge(partial Snapshot) Snapshot {
	out := s.Clone()
	c := partial.cleared

	out.Board = mergeField(out.Board, partial.Board, c&fieldBoard != 0)
	switch {
	case c&fieldMoveHistory != 0:
		out.MoveHistory = nil
	case present(partial.MoveHistory):
		out.MoveHistory = bytes.Clone(partial.MoveHistory)
	}
	out.CurrentTurn = mergeField(out.CurrentTurn, partial.CurrentTurn, c&fieldCurrentTurn != 0)
	out.GameOver = mergeField(out.GameOver, partial.GameOver, c&fieldGameOver != 0)
	out.Winner = mergeField(out.Winner, partial.Winner, c&fieldWinner != 0)
	out.DrawReason = mergeField(out.DrawReason, partial.DrawReason, c&fieldDrawReason != 0)
	out.Meaningful = mergeField(out.Meaningful, partial.Meaningful, c&fieldMeaningful != 0)
	return out
}

func mergeField[T any](cur, next *T, null bool) *T {
	switch {
	case null:
		return nil
	case next != nil:
		return ptr(*next)
	default:
		return cur
	}
}

// IsMeaningful reports whether the snapshot should be pushed to a peer that
// joins or asks for the current state.
func (s Snapshot) IsMeaningful() bool {
	if s.Meaningful != nil {
		return *s.Meaningful
	}
	return (s.Board != nil && *s.Board != "") || present(s.MoveHistory)
}

// IsZero reports whether no field has ever been recorded.
func (s Snapshot) IsZero() bool {
	return s.Board == nil &&
		!present(s.MoveHistory) &&
		s.CurrentTurn == nil &&
		s.GameOver == nil &&
		s.Winner == nil &&
		s.DrawReason == nil &&
		s.Meaningful == nil
}

// Clone returns a deep copy so callers outside the store can't alias its state.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{}
	if s.Board != nil {
		out.Board = ptr(*s.Board)
	}
	if present(s.MoveHistory) {
		out.MoveHistory = bytes.Clone(s.MoveHistory)
	}
	if s.CurrentTurn != nil {
		out.CurrentTurn = ptr(*s.CurrentTurn)
	}
	if s.GameOver != nil {
		out.GameOver = ptr(*s.GameOver)
	}
	if s.Winner != nil {
		out.Winner = ptr(*s.Winner)
	}
	if s.DrawReason != nil {
		out.DrawReason = ptr(*s.DrawReason)
	}
	if s.Meaningful != nil {
		out.Meaningful = ptr(*s.Meaningful)
	}
	return out
}

// present treats an absent or JSON null raw field as missing.
func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func ptr[T any](v T) *T { return &v }
