package types

import (
	"encoding/json"

	"github.com/DoyleJ11/chess-relay/internal/engine"
)

// Inbound event types.
const (
	TypeJoin         = "join"
	TypeMove         = "move"
	TypeStateUpdate  = "stateUpdate"
	TypeRequestState = "requestState"
	TypeLeave        = "leave"
)

// Outbound event types.
const (
	TypeSessionFull                   = "sessionFull"
	TypeRoster                        = "roster"
	TypeSnapshot                      = "snapshot"
	TypeOpponentMove                  = "opponentMove"
	TypePlayerLeft                    = "playerLeft"
	TypePlayerTemporarilyDisconnected = "playerTemporarilyDisconnected"
	TypeError                         = "error"
)

// Reasons carried by playerLeft.
const (
	ReasonOpponentLeft    = "opponent left the game"
	ReasonOpponentTimeout = "opponent disconnected and did not reconnect"
)

type ClientMessage struct {
	Type        string           `json:"type"`
	SessionID   string           `json:"sessionId,omitempty"`
	DisplayName string           `json:"displayName,omitempty"`
	Move        json.RawMessage  `json:"move,omitempty"`
	GameState   *engine.Snapshot `json:"gameState,omitempty"`
}

type PlayerView struct {
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type ServerMessage struct {
	Type            string           `json:"type"`
	SessionID       string           `json:"sessionId,omitempty"`
	Players         []PlayerView     `json:"players,omitempty"`
	State           *engine.Snapshot `json:"state,omitempty"`
	Move            json.RawMessage  `json:"move,omitempty"`
	LeavingIdentity string           `json:"leavingIdentity,omitempty"`
	Winner          string           `json:"winner,omitempty"`
	Reason          string           `json:"reason,omitempty"`
	Identity        string           `json:"identity,omitempty"`
	Message         string           `json:"message,omitempty"`
}

func SessionFull(sessionID string) ServerMessage {
	return ServerMessage{Type: TypeSessionFull, SessionID: sessionID}
}

func Roster(sessionID string, players []PlayerView) ServerMessage {
	return ServerMessage{Type: TypeRoster, SessionID: sessionID, Players: players}
}

func Snapshot(sessionID string, snap engine.Snapshot) ServerMessage {
	return ServerMessage{Type: TypeSnapshot, SessionID: sessionID, State: &snap}
}

func OpponentMove(sessionID string, move json.RawMessage) ServerMessage {
	return ServerMessage{Type: TypeOpponentMove, SessionID: sessionID, Move: move}
}

func PlayerLeft(sessionID, leaving, winner, reason string) ServerMessage {
	return ServerMessage{
		Type:            TypePlayerLeft,
		SessionID:       sessionID,
		LeavingIdentity: leaving,
		Winner:          winner,
		Reason:          reason,
	}
}

func PlayerTemporarilyDisconnected(sessionID, identity string) ServerMessage {
	return ServerMessage{Type: TypePlayerTemporarilyDisconnected, SessionID: sessionID, Identity: identity}
}

func Error(msg string) ServerMessage {
	return ServerMessage{Type: TypeError, Message: msg}
}
