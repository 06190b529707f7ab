package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/DoyleJ11/chess-relay/internal/engine"
	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/supervisor"
	"github.com/DoyleJ11/chess-relay/internal/types"
	"go.uber.org/zap"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrMissingSession = errors.New("missing sessionId")
	ErrNotMember      = errors.New("connection is not a player of this session")
)

type Broadcaster interface {
	NotifyOne(conn session.ConnID, msg types.ServerMessage)
	NotifyOthers(sessionID string, exclude session.ConnID, msg types.ServerMessage)
	NotifySession(sessionID string, msg types.ServerMessage)
}

// Gateway routes inbound events from connections to the store and the
// supervisor and sends the resulting notifications through the broadcaster.
// It never touches session state itself.
type Gateway struct {
	store *session.Store
	sup   *supervisor.Supervisor
	out   Broadcaster
	log   *zap.Logger
}

func New(store *session.Store, sup *supervisor.Supervisor, out Broadcaster, log *zap.Logger) *Gateway {
	return &Gateway{store: store, sup: sup, out: out, log: log}
}

// Handle routes one message read from conn. A returned error should be
// reported to that connection only.
func (g *Gateway) Handle(conn session.ConnID, m types.ClientMessage) error {
	g.log.Debug("inbound",
		zap.String("conn_id", string(conn)),
		zap.String("type", m.Type),
		zap.String("session_id", m.SessionID))

	switch m.Type {
	case types.TypeJoin:
		return g.Join(conn, m.SessionID, m.DisplayName)
	case types.TypeMove:
		return g.Move(conn, m.SessionID, m.Move, m.GameState)
	case types.TypeStateUpdate:
		return g.StateUpdate(conn, m.SessionID, m.GameState)
	case types.TypeRequestState:
		return g.RequestState(conn, m.SessionID)
	case types.TypeLeave:
		return g.Leave(conn, m.SessionID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

func (g *Gateway) Join(conn session.ConnID, sessionID, displayName string) error {
	res, err := g.store.JoinOrCreate(sessionID, displayName, conn)
	switch {
	case errors.Is(err, session.ErrSessionFull):
		g.log.Info("session full",
			zap.String("session_id", sessionID),
			zap.String("display_name", displayName))
		g.out.NotifyOne(conn, types.SessionFull(sessionID))
		return nil
	case err != nil:
		return err
	}

	if res.Rejoined {
		g.sup.Reconnected(sessionID, displayName)
	}

	g.out.NotifySession(sessionID, types.Roster(sessionID, playerViews(res.Roster)))

	if snap, ok := g.store.Snapshot(sessionID); ok && snap.IsMeaningful() {
		g.out.NotifyOne(conn, types.Snapshot(sessionID, snap))
	}
	return nil
}

func (g *Gateway) Move(conn session.ConnID, sessionID string, move json.RawMessage, fields *engine.Snapshot) error {
	if err := g.checkMember(conn, sessionID); err != nil {
		return ignoreGone(err)
	}
	if fields != nil {
		g.store.RecordStateUpdate(sessionID, *fields)
	}
	g.out.NotifyOthers(sessionID, conn, types.OpponentMove(sessionID, move))
	return nil
}

func (g *Gateway) StateUpdate(conn session.ConnID, sessionID string, fields *engine.Snapshot) error {
	if err := g.checkMember(conn, sessionID); err != nil {
		return ignoreGone(err)
	}
	if fields != nil {
		g.store.RecordStateUpdate(sessionID, *fields)
	}
	return nil
}

func (g *Gateway) RequestState(conn session.ConnID, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	if snap, ok := g.store.Snapshot(sessionID); ok && snap.IsMeaningful() {
		g.out.NotifyOne(conn, types.Snapshot(sessionID, snap))
	}
	return nil
}

func (g *Gateway) Leave(conn session.ConnID, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	g.sup.Leave(sessionID, conn)
	return nil
}

// Dropped handles a transport-level disconnect: every player still attached
// to conn enters its grace period and its opponent is told. A player that
// already rejoined elsewhere is left alone.
func (g *Gateway) Dropped(conn session.ConnID) {
	for _, m := range g.store.SessionsFor(conn) {
		if !g.sup.Disconnected(m.SessionID, m.DisplayName, conn) {
			continue
		}
		g.out.NotifyOthers(m.SessionID, conn,
			types.PlayerTemporarilyDisconnected(m.SessionID, m.DisplayName))
	}
}

// errGone marks updates that raced session teardown; they are dropped quietly.
var errGone = errors.New("session gone")

func (g *Gateway) checkMember(conn session.ConnID, sessionID string) error {
	if sessionID == "" {
		return ErrMissingSession
	}
	if _, ok := g.store.Member(sessionID, conn); ok {
		return nil
	}
	if !g.store.Exists(sessionID) {
		g.log.Debug("update for missing session ignored",
			zap.String("session_id", sessionID),
			zap.String("conn_id", string(conn)))
		return errGone
	}
	return ErrNotMember
}

func ignoreGone(err error) error {
	if errors.Is(err, errGone) {
		return nil
	}
	return err
}

func playerViews(players []session.Player) []types.PlayerView {
	views := make([]types.PlayerView, 0, len(players))
	for _, p := range players {
		views = append(views, types.PlayerView{DisplayName: p.DisplayName, Role: string(p.Role)})
	}
	return views
}

type PlayerStatus struct {
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
	State       string `json:"state"`
}

type SessionView struct {
	SessionID string           `json:"sessionId"`
	Players   []PlayerStatus   `json:"players"`
	State     *engine.Snapshot `json:"state,omitempty"`
}

// Describe reports a session's roster with each player's connection state.
func (g *Gateway) Describe(sessionID string) (SessionView, bool) {
	roster, ok := g.store.Roster(sessionID)
	if !ok {
		return SessionView{}, false
	}

	view := SessionView{SessionID: sessionID, Players: make([]PlayerStatus, 0, len(roster))}
	for _, p := range roster {
		view.Players = append(view.Players, PlayerStatus{
			DisplayName: p.DisplayName,
			Role:        string(p.Role),
			State:       string(g.sup.State(sessionID, p.DisplayName)),
		})
	}
	if snap, ok := g.store.Snapshot(sessionID); ok && snap.IsMeaningful() {
		view.State = &snap
	}
	return view, true
}

// Exists reports whether a session id is in use.
func (g *Gateway) Exists(sessionID string) bool {
	return g.store.Exists(sessionID)
}
