package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/chess-relay/internal/gateway"
	"github.com/DoyleJ11/chess-relay/internal/session"
	"github.com/DoyleJ11/chess-relay/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	OriginPatterns  []string
	OutboxSize      int
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

// Registry is the part of the hub a connection needs.
type Registry interface {
	Register(conn session.ConnID, outbox chan types.ServerMessage)
	Unregister(conn session.ConnID)
	NotifyOne(conn session.ConnID, msg types.ServerMessage)
}

func Handler(gw *gateway.Gateway, reg Registry, opts Options, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(opts.MaxMessageBytes)

		id := session.ConnID(uuid.NewString())
		clog := log.With(zap.String("conn_id", string(id)))
		clog.Info("connection opened", zap.String("remote", r.RemoteAddr))

		out := make(chan types.ServerMessage, opts.OutboxSize)
		reg.Register(id, out)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			defer cancel() // a dead writer must also stop the reader
			writeLoop(ctx, conn, out, opts, clog)
		}()

		readLoop(ctx, conn, id, gw, reg, clog)

		gw.Dropped(id)
		reg.Unregister(id)
		cancel()
		<-writerDone
		clog.Info("connection closed")
	}
}

func readLoop(ctx context.Context, conn *websocket.Conn, id session.ConnID, gw *gateway.Gateway, reg Registry, log *zap.Logger) {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("peer closed")
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		if typ != websocket.MessageText {
			reg.NotifyOne(id, types.Error("text frames only"))
			continue
		}

		var cm types.ClientMessage
		if err := json.Unmarshal(data, &cm); err != nil {
			reg.NotifyOne(id, types.Error("bad json"))
			continue
		}

		if err := gw.Handle(id, cm); err != nil {
			reg.NotifyOne(id, types.Error(err.Error()))
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, opts Options, log *zap.Logger) {
	ticker := time.NewTicker(opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-out:
			if !ok {
				// the hub dropped us
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				log.Error("encode outbound", zap.String("type", msg.Type), zap.Error(err))
				continue
			}
			wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			pctx, pcancel := context.WithTimeout(ctx, opts.WriteTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}
