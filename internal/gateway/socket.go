package gateway

import (
	"context"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/AlfazAli25/NexusChat/internal/connection"
)

// SocketOptions tunes the transport pumps.
type SocketOptions struct {
	PingInterval  time.Duration
	WriteDeadline time.Duration
	MaxMsgSize    int64
}

// HandleWS is the websocket entrypoint. The credential travels in handshake
// metadata (?token=); a connection that fails verification is closed before
// it is registered anywhere.
func (g *Gateway) HandleWS(opts SocketOptions) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		token := conn.Query("token")
		uid, err := g.Authenticate(token)
		if err != nil {
			g.log.Debugw("handshake rejected", "err", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "auth failed"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}

		ctx := context.Background()
		client := connection.NewClient(uid, uuid.NewString(), g.opts.SendBuffer)
		g.Connect(ctx, client)
		go g.writePump(conn, client, opts)
		g.readLoop(ctx, conn, client, opts)
		g.Disconnect(ctx, client)
	}
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, c *connection.Client, opts SocketOptions) {
	conn.SetReadLimit(opts.MaxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * opts.PingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * opts.PingInterval))
	})
	for {
		mt, frame, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				g.log.Debugw("socket read error", "user", c.UserID, "err", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		g.Dispatch(ctx, c, frame)
	}
}

func (g *Gateway) writePump(conn *websocket.Conn, c *connection.Client, opts SocketOptions) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.Send():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				g.log.Debugw("socket write error", "user", c.UserID, "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(opts.WriteDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
