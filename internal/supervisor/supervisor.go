package supervisor

import (
	"sync"
	"time"

	"github.com/DoyleJ11/chess-relay/internal/archive"
	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/types"
	"go.uber.org/zap"
)

type State string

const (
	StateConnected   State = "connected"
	StateGracePeriod State = "grace_period"
	StateLeft        State = "left"
)

type Store interface {
	RemovePlayer(sessionID string, conn session.ConnID) (session.Player, *session.Player, error)
	Player(sessionID, displayName string) (session.Player, bool)
}

type Notifier interface {
	NotifyOne(conn session.ConnID, msg types.ServerMessage)
}

type key struct {
	sessionID   string
	displayName string
}

// grace is one armed grace-period timer. gen identifies it so a timer that
// was superseded or cancelled can tell it is stale when it fires.
type grace struct {
	gen      uint64
	conn     session.ConnID
	deadline time.Time
	timer    *time.Timer
}

// Supervisor runs the per-player grace period after a dropped connection
// and turns explicit leaves and expired grace periods into a win for the
// remaining peer.
type Supervisor struct {
	store    Store
	notifier Notifier
	recorder archive.Recorder
	period   time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[key]*grace
	gen     uint64
	stopped bool
}

func New(store Store, notifier Notifier, recorder archive.Recorder, period time.Duration, log *zap.Logger) *Supervisor {
	if recorder == nil {
		recorder = archive.Nop{}
	}
	return &Supervisor{
		store:    store,
		notifier: notifier,
		recorder: recorder,
		period:   period,
		log:      log,
		pending:  make(map[key]*grace),
	}
}

// Disconnected arms the grace timer for a player whose connection dropped,
// superseding any timer already armed for the same player. It reports false
// and arms nothing when the player is no longer attached to conn, which
// happens when a rejoin on a new connection got in first.
func (s *Supervisor) Disconnected(sessionID, displayName string, conn session.ConnID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	// Checked under s.mu so a concurrent Reconnected either runs before
	// this (and the check fails) or after the timer is stored (and cancels it).
	if p, ok := s.store.Player(sessionID, displayName); !ok || p.Conn != conn {
		s.log.Debug("stale disconnect ignored",
			zap.String("session_id", sessionID),
			zap.String("display_name", displayName),
			zap.String("conn_id", string(conn)))
		return false
	}

	k := key{sessionID: sessionID, displayName: displayName}
	if prev, ok := s.pending[k]; ok {
		prev.timer.Stop()
	}

	s.gen++
	g := &grace{gen: s.gen, conn: conn, deadline: time.Now().Add(s.period)}
	// expire takes s.mu, so it cannot observe g before it is stored below
	g.timer = time.AfterFunc(s.period, func() { s.expire(k, g.gen) })
	s.pending[k] = g

	s.log.Info("grace period started",
		zap.String("session_id", sessionID),
		zap.String("display_name", displayName),
		zap.String("conn_id", string(conn)),
		zap.Duration("grace", s.period))
	return true
}

// Reconnected cancels the player's grace timer. It reports whether one was
// pending.
func (s *Supervisor) Reconnected(sessionID, displayName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{sessionID: sessionID, displayName: displayName}
	g, ok := s.pending[k]
	if !ok {
		return false
	}
	g.timer.Stop()
	delete(s.pending, k)

	s.log.Info("player reconnected within grace period",
		zap.String("session_id", sessionID),
		zap.String("display_name", displayName),
		zap.Duration("remaining", time.Until(g.deadline)))
	return true
}

// Leave removes the player attached to conn right away. The remaining peer,
// if any, wins. It reports false when conn owns no player in the session.
func (s *Supervisor) Leave(sessionID string, conn session.ConnID) bool {
	removed, remaining, err := s.store.RemovePlayer(sessionID, conn)
	if err != nil {
		s.log.Debug("leave ignored",
			zap.String("session_id", sessionID),
			zap.String("conn_id", string(conn)),
			zap.Error(err))
		return false
	}

	s.mu.Lock()
	k := key{sessionID: sessionID, displayName: removed.DisplayName}
	if g, ok := s.pending[k]; ok {
		g.timer.Stop()
		delete(s.pending, k)
	}
	s.mu.Unlock()

	s.log.Info("player left",
		zap.String("session_id", sessionID),
		zap.String("display_name", removed.DisplayName))
	s.finish(sessionID, removed, remaining, types.ReasonOpponentLeft)
	return true
}

func (s *Supervisor) expire(k key, gen uint64) {
	s.mu.Lock()
	g, ok := s.pending[k]
	if !ok || g.gen != gen {
		s.mu.Unlock()
		s.log.Debug("stale grace timer discarded",
			zap.String("session_id", k.sessionID),
			zap.String("display_name", k.displayName))
		return
	}
	delete(s.pending, k)
	s.mu.Unlock()

	// The store only removes the player if it is still on the dropped
	// connection; a rejoin that swapped it in the meantime wins.
	removed, remaining, err := s.store.RemovePlayer(k.sessionID, g.conn)
	if err != nil {
		s.log.Debug("grace expiry discarded",
			zap.String("session_id", k.sessionID),
			zap.String("display_name", k.displayName),
			zap.Error(err))
		return
	}

	s.log.Info("player did not reconnect",
		zap.String("session_id", k.sessionID),
		zap.String("display_name", removed.DisplayName))
	s.finish(k.sessionID, removed, remaining, types.ReasonOpponentTimeout)
}

func (s *Supervisor) finish(sessionID string, removed session.Player, remaining *session.Player, reason string) {
	if remaining == nil {
		s.log.Info("session ended without a winner", zap.String("session_id", sessionID))
		return
	}

	s.notifier.NotifyOne(remaining.Conn,
		types.PlayerLeft(sessionID, removed.DisplayName, remaining.DisplayName, reason))
	s.recorder.Record(archive.Result{
		SessionID:  sessionID,
		Winner:     remaining.DisplayName,
		WinnerRole: string(remaining.Role),
		Loser:      removed.DisplayName,
		Reason:     reason,
		EndedAt:    time.Now(),
	})

	s.log.Info("winner declared",
		zap.String("session_id", sessionID),
		zap.String("winner", remaining.DisplayName),
		zap.String("reason", reason))
}

// State reports where a player is in the connect/grace/left cycle.
func (s *Supervisor) State(sessionID, displayName string) State {
	s.mu.Lock()
	_, pending := s.pending[key{sessionID: sessionID, displayName: displayName}]
	s.mu.Unlock()

	if pending {
		return StateGracePeriod
	}
	if _, ok := s.store.Player(sessionID, displayName); ok {
		return StateConnected
	}
	return StateLeft
}

// Deadline returns when the player's grace period ends, if one is running.
func (s *Supervisor) Deadline(sessionID, displayName string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.pending[key{sessionID: sessionID, displayName: displayName}]
	if !ok {
		return time.Time{}, false
	}
	return g.deadline, true
}

func (s *Supervisor) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer without firing it. Later disconnects are
// ignored.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for k, g := range s.pending {
		g.timer.Stop()
		delete(s.pending, k)
	}
}
