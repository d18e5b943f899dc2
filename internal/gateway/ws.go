package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/flemzord/substackulous/internal/assistant"
	"github.com/flemzord/substackulous/internal/auth"
	"github.com/flemzord/substackulous/internal/security"
	"github.com/flemzord/substackulous/pkg/message"
)

// Websocket frame types sent by the server.
const (
	FrameDelta = "delta"
	FrameDone  = "done"
	FrameError = "error"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 5 * time.Minute
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Type    string           `json:"type"`
	Content string           `json:"content,omitempty"`
	Message *message.Message `json:"message,omitempty"`
	Balance *int             `json:"balance,omitempty"`
	Error   string           `json:"error,omitempty"`
	Detail  string           `json:"detail,omitempty"`
}

// handleChatSocket streams chat replies over a websocket. Each client frame
// is a ChatRequest; the server answers with delta frames and one done or
// error frame per turn. Turns on one connection run sequentially.
func (g *Gateway) handleChatSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := auth.UserFromContext(r.Context())

		// Streams outlive the server's request deadlines.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.config.AllowedOrigins,
		})
		if err != nil {
			g.logger.Warn("websocket accept failed", "error", err)
			return
		}
		conn.SetReadLimit(int64(g.config.MaxBodyBytes))
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		g.metrics.wsConnections.Inc()
		defer g.metrics.wsConnections.Dec()

		ctx := r.Context()
		for {
			var req ChatRequest
			readCtx, cancel := context.WithTimeout(ctx, wsIdleTimeout)
			err := wsjson.Read(readCtx, conn, &req)
			cancel()
			if err != nil {
				switch {
				case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
					websocket.CloseStatus(err) == websocket.StatusGoingAway:
					_ = conn.Close(websocket.StatusNormalClosure, "")
				case errors.Is(err, context.DeadlineExceeded):
					_ = conn.Close(websocket.StatusPolicyViolation, "idle timeout")
				default:
					g.logger.Debug("websocket read ended", "user_id", user.ID, "error", err)
				}
				return
			}

			if err := g.limiter.Allow(security.KindRequest, user.ID); err != nil {
				if !g.sendFrame(ctx, conn, errorFrame(err)) {
					return
				}
				continue
			}
			if !g.streamTurn(ctx, conn, user.ID, req) {
				return
			}
		}
	}
}

// streamTurn runs one chat turn. It reports false once the connection is
// unusable.
func (g *Gateway) streamTurn(ctx context.Context, conn *websocket.Conn, userID string, req ChatRequest) bool {
	var (
		deltas <-chan assistant.Delta
		err    error
	)
	if req.ConversationID != "" {
		deltas, err = g.svc().ChatConversationStream(ctx, userID, req.ConversationID, req.Message)
	} else {
		deltas, err = g.svc().ChatStream(ctx, userID, req.Messages)
	}
	if err != nil {
		return g.sendFrame(ctx, conn, errorFrame(err))
	}

	for d := range deltas {
		var f Frame
		switch {
		case d.Err != nil:
			f = errorFrame(d.Err)
		case d.Done:
			reply := d.Reply
			f = Frame{Type: FrameDone, Message: &reply, Balance: g.balance(ctx, userID)}
		default:
			f = Frame{Type: FrameDelta, Content: d.Content}
		}
		if !g.sendFrame(ctx, conn, f) {
			// Drain so the producer goroutine can exit.
			for range deltas {
			}
			return false
		}
	}
	return true
}

func (g *Gateway) sendFrame(ctx context.Context, conn *websocket.Conn, f Frame) bool {
	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := wsjson.Write(wctx, conn, f); err != nil {
		g.logger.Debug("websocket write failed", "error", err)
		return false
	}
	return true
}

func errorFrame(err error) Frame {
	status, code := classify(err)
	f := Frame{Type: FrameError, Error: code}
	if status < http.StatusInternalServerError {
		f.Detail = err.Error()
	}
	return f
}
