package hub

import (
	"context"

	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/types"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

type Register struct {
	Conn   session.ConnID
	Outbox chan types.ServerMessage // closed by the hub, never by the owner
}

type Unregister struct {
	Conn session.ConnID
}

type Deliver struct {
	To  []session.ConnID
	Msg types.ServerMessage
}

type GetState struct {
	Reply chan View
}

type ShutdownHub struct{}

func (Register) isHubMsg()    {}
func (Unregister) isHubMsg()  {}
func (Deliver) isHubMsg()     {}
func (GetState) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

type View struct {
	NumClients int
}

// Roster resolves a session to the live connections of its players.
type Roster interface {
	Connections(sessionID string) []session.ConnID
}

// Hub owns every connection outbox. Deliveries are best effort: unknown
// connections are skipped and a full outbox gets its client dropped.
type Hub struct {
	inbox   chan HubMsg
	clients map[session.ConnID]chan types.ServerMessage
	roster  Roster
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, roster Roster, log *zap.Logger, inboxSize int) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, inboxSize),
		clients: make(map[session.ConnID]chan types.ServerMessage),
		roster:  roster,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub goroutine has exited and every outbox is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Register:
				if old, ok := h.clients[msg.Conn]; ok && old != msg.Outbox {
					close(old)
				}
				h.clients[msg.Conn] = msg.Outbox

			case Unregister:
				if ch, ok := h.clients[msg.Conn]; ok {
					close(ch)
					delete(h.clients, msg.Conn)
				}

			case Deliver:
				h.deliver(msg.To, msg.Msg)

			case GetState:
				msg.Reply <- View{NumClients: len(h.clients)}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) deliver(to []session.ConnID, msg types.ServerMessage) {
	for _, id := range to {
		ch, ok := h.clients[id]
		if !ok {
			continue
		}
		select {
		case ch <- msg:
		default:
			h.log.Warn("dropping slow client",
				zap.String("conn_id", string(id)),
				zap.String("type", msg.Type))
			close(ch)
			delete(h.clients, id)
		}
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.cancel()
}

// send never blocks past hub shutdown.
func (h *Hub) send(m HubMsg) {
	select {
	case h.inbox <- m:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Register(conn session.ConnID, outbox chan types.ServerMessage) {
	h.send(Register{Conn: conn, Outbox: outbox})
}

func (h *Hub) Unregister(conn session.ConnID) {
	h.send(Unregister{Conn: conn})
}

// NotifyOne delivers msg to a single connection.
func (h *Hub) NotifyOne(conn session.ConnID, msg types.ServerMessage) {
	h.send(Deliver{To: []session.ConnID{conn}, Msg: msg})
}

// NotifySession delivers msg to every player connection of the session.
func (h *Hub) NotifySession(sessionID string, msg types.ServerMessage) {
	conns := h.roster.Connections(sessionID)
	if len(conns) == 0 {
		return
	}
	h.send(Deliver{To: conns, Msg: msg})
}

// NotifyOthers delivers msg to the session's connections except exclude.
func (h *Hub) NotifyOthers(sessionID string, exclude session.ConnID, msg types.ServerMessage) {
	var to []session.ConnID
	for _, c := range h.roster.Connections(sessionID) {
		if c != exclude {
			to = append(to, c)
		}
	}
	if len(to) == 0 {
		return
	}
	h.send(Deliver{To: to, Msg: msg})
}

// Clients reports the number of registered connections, or 0 after shutdown.
func (h *Hub) Clients() int {
	reply := make(chan View, 1)
	select {
	case h.inbox <- GetState{Reply: reply}:
	case <-h.ctx.Done():
		return 0
	}
	select {
	case v := <-reply:
		return v.NumClients
	case <-h.done:
		return 0
	}
}

// Shutdown stops the hub and waits for it to close every outbox.
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
}
