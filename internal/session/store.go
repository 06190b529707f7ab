package session

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/DoyleJ11/chess-relay/internal/engine"
	"go.uber.org/zap"
)

var (
	ErrSessionFull = errors.New("session full")
	ErrNotFound    = errors.New("session or player not found")
	ErrInvalidJoin = errors.New("session id and display name are required")
)

// MaxPlayers is the roster capacity of a session.
const MaxPlayers = 2

// ConnID identifies one live transport connection. It changes on every
// reconnect; DisplayName is the stable identity.
type ConnID string

type Player struct {
	Conn        ConnID
	DisplayName string
	Role        Role
}

type JoinResult struct {
	Role     Role
	Roster   []Player
	Created  bool   // the session did not exist before this join
	Rejoined bool   // an existing player swapped its connection
	PrevConn ConnID // connection replaced by a rejoin
}

// Membership names one (session, player) pair a connection belongs to.
type Membership struct {
	SessionID   string
	DisplayName string
}

type record struct {
	players  []Player
	assigned []Role
	snapshot engine.Snapshot
}

func (r *record) indexByName(name string) int {
	return slices.IndexFunc(r.players, func(p Player) bool { return p.DisplayName == name })
}

func (r *record) indexByConn(conn ConnID) int {
	return slices.IndexFunc(r.players, func(p Player) bool { return p.Conn == conn })
}

// Store owns every session and is the only writer of rosters, roles and
// snapshots. A single mutex serializes all sessions; every method is
// non-blocking apart from that lock.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*record

	coin func() bool
	log  *zap.Logger
}

type Option func(*Store)

// WithCoin replaces the fair coin used for the first role of a session.
func WithCoin(coin func() bool) Option {
	return func(s *Store) { s.coin = coin }
}

func NewStore(log *zap.Logger, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*record),
		coin:     FairCoin,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// JoinOrCreate adds displayName to the session, creating the session if
// needed. A known displayName is a rejoin: its connection is swapped and the
// role kept.
func (s *Store) JoinOrCreate(sessionID, displayName string, conn ConnID) (JoinResult, error) {
	if sessionID == "" || displayName == "" {
		return JoinResult{}, ErrInvalidJoin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var res JoinResult
	rec, ok := s.sessions[sessionID]
	if !ok {
		rec = &record{}
		res.Created = true
	}

	if i := rec.indexByName(displayName); i >= 0 {
		res.Rejoined = true
		res.PrevConn = rec.players[i].Conn
		rec.players[i].Conn = conn
		res.Role = rec.players[i].Role
		res.Roster = slices.Clone(rec.players)

		s.log.Info("player rejoined",
			zap.String("session_id", sessionID),
			zap.String("display_name", displayName),
			zap.String("conn_id", string(conn)),
			zap.String("role", string(res.Role)))
		return res, nil
	}

	if len(rec.players) >= MaxPlayers {
		return JoinResult{}, fmt.Errorf("join %q as %q: %w", sessionID, displayName, ErrSessionFull)
	}

	role, err := NextRole(rec.assigned, s.coin)
	if err != nil {
		return JoinResult{}, fmt.Errorf("join %q as %q: %w", sessionID, displayName, err)
	}

	rec.assigned = append(rec.assigned, role)
	rec.players = append(rec.players, Player{Conn: conn, DisplayName: displayName, Role: role})
	if res.Created {
		s.sessions[sessionID] = rec
	}

	res.Role = role
	res.Roster = slices.Clone(rec.players)

	s.log.Info("player joined",
		zap.String("session_id", sessionID),
		zap.String("display_name", displayName),
		zap.String("conn_id", string(conn)),
		zap.String("role", string(role)),
		zap.Bool("created", res.Created))
	return res, nil
}

// RecordStateUpdate merges partial into the session snapshot. It reports
// false when the session no longer exists, which callers treat as a no-op.
func (s *Store) RecordStateUpdate(sessionID string, partial engine.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return false
	}
	rec.snapshot = rec.snapshot.Merge(partial)
	return true
}

// Snapshot returns a copy of the stored snapshot, or the zero Snapshot when
// the session does not exist.
func (s *Store) Snapshot(sessionID string) (engine.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return engine.Snapshot{}, false
	}
	return rec.snapshot.Clone(), true
}

// RemovePlayer removes the player currently attached to conn. When the roster
// becomes empty the session is deleted under the same lock. remaining is nil
// when nobody is left.
func (s *Store) RemovePlayer(sessionID string, conn ConnID) (removed Player, remaining *Player, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return Player{}, nil, ErrNotFound
	}
	i := rec.indexByConn(conn)
	if i < 0 {
		return Player{}, nil, ErrNotFound
	}

	removed = rec.players[i]
	rec.players = slices.Delete(rec.players, i, i+1)
	rec.assigned = removeRole(rec.assigned, removed.Role)

	if len(rec.players) == 0 {
		delete(s.sessions, sessionID)
		s.log.Info("session deleted", zap.String("session_id", sessionID))
		return removed, nil, nil
	}

	left := rec.players[0]
	return removed, &left, nil
}

// Roster returns a copy of the players in join order.
func (s *Store) Roster(sessionID string) ([]Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return slices.Clone(rec.players), true
}

func (s *Store) Player(sessionID, displayName string) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return Player{}, false
	}
	i := rec.indexByName(displayName)
	if i < 0 {
		return Player{}, false
	}
	return rec.players[i], true
}

// Member returns the player whose current connection is conn.
func (s *Store) Member(sessionID string, conn ConnID) (Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return Player{}, false
	}
	i := rec.indexByConn(conn)
	if i < 0 {
		return Player{}, false
	}
	return rec.players[i], true
}

// Connections returns the live connections of a session's players.
func (s *Store) Connections(sessionID string) []ConnID {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	conns := make([]ConnID, 0, len(rec.players))
	for _, p := range rec.players {
		conns = append(conns, p.Conn)
	}
	return conns
}

// SessionsFor lists every session in which conn is the current connection
// of a player, ordered by session id.
func (s *Store) SessionsFor(conn ConnID) []Membership {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Membership
	for id, rec := range s.sessions {
		if i := rec.indexByConn(conn); i >= 0 {
			out = append(out, Membership{SessionID: id, DisplayName: rec.players[i].DisplayName})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (s *Store) Exists(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[sessionID]
	return ok
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}
