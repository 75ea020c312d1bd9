package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DoyleJ11/market-call-backend/internal/engine"
	"github.com/DoyleJ11/market-call-backend/internal/hub"
	"github.com/DoyleJ11/market-call-backend/internal/lobby"
	"github.com/DoyleJ11/market-call-backend/internal/registry"
	"github.com/DoyleJ11/market-call-backend/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
	pingInterval = 25 * time.Second
	maxFrameSize = 64 << 10
)

type Options struct {
	DefaultGame string
	Origins     []string // "*" skips the origin check
	MsgRate     float64  // inbound frames per second
	MsgBurst    int
	Logger      *zap.Logger
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("ws")
	accept := acceptOptions(opts.Origins)

	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("code")))
		if code == "" {
			code = opts.DefaultGame
		}
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		lb := h.Lookup(r.Context(), code)
		if lb == nil && code == opts.DefaultGame {
			lb = h.Ensure(r.Context(), code)
		}
		if lb == nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, accept)
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		conn.SetReadLimit(maxFrameSize)

		out := make(chan types.ServerMessage, outboxSize)
		clientID := uuid.NewString()
		clog := log.With(zap.String("game", code), zap.String("client", clientID))

		if !lb.Send(r.Context(), lobby.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "game closed")
			return
		}
		defer lb.Send(context.Background(), lobby.Leave{ClientID: clientID})
		clog.Info("client connected")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go writeLoop(writeCtx, conn, out, clog)

		limiter := newLimiter(opts.MsgRate, opts.MsgBurst)

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Info("client disconnected")
				default:
					clog.Debug("read failed", zap.Error(err))
				}
				return
			}

			if !limiter.Allow() {
				clog.Debug("rate limited")
				writeMessage(r.Context(), conn, types.ErrorMessage("rate limit exceeded"))
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeMessage(r.Context(), conn, types.ErrorMessage("bad json"))
				continue
			}

			msg, ok := toLobbyMsg(clientID, cm)
			if !ok {
				writeMessage(r.Context(), conn, types.ErrorMessage("unknown message type"))
				continue
			}

			if !lb.Send(r.Context(), msg) {
				conn.Close(websocket.StatusGoingAway, "game closed")
				return
			}
		}
	}
}

// writeLoop drains the outbox until the lobby closes it, pinging the peer
// between messages. A closed outbox means the lobby dropped this client.
func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan types.ServerMessage, log *zap.Logger) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "dropped")
				return
			}
			if err := writeMessage(ctx, conn, msg); err != nil {
				log.Debug("write failed", zap.Error(err))
				conn.Close(websocket.StatusInternalError, "write failed")
				return
			}

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "ping timeout")
				return
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

func toLobbyMsg(clientID string, m types.ClientMessage) (lobby.FromClient, bool) {
	msg := lobby.FromClient{ClientID: clientID}

	switch m.Type {
	case types.MsgJoin:
		msg.Cmd = engine.Command{Type: engine.CmdJoin, Name: m.Name}
		msg.ResumeID = registry.PlayerID(m.PlayerID)
	case types.MsgSubmitVotes:
		msg.Cmd = engine.Command{Type: engine.CmdSubmitVotes, Votes: m.Votes}
	case types.MsgBuyTip:
		msg.Cmd = engine.Command{Type: engine.CmdBuyTip}
	case types.MsgHostJoin:
		msg.Cmd = engine.Command{Type: engine.CmdHostJoin}
		msg.HostKey = m.Key
	case types.MsgHostStartRound:
		msg.Cmd = engine.Command{Type: engine.CmdStartRound}
	case types.MsgHostOpenVoting:
		msg.Cmd = engine.Command{Type: engine.CmdOpenVoting}
	case types.MsgHostReveal:
		msg.Cmd = engine.Command{Type: engine.CmdReveal}
	case types.MsgHostNextRound:
		msg.Cmd = engine.Command{Type: engine.CmdNextRound}
	case types.MsgHostReset:
		msg.Cmd = engine.Command{Type: engine.CmdReset}
	default:
		return lobby.FromClient{}, false
	}
	return msg, true
}

// newLimiter returns an unlimited limiter for a non-positive rate.
func newLimiter(perSec float64, burst int) *rate.Limiter {
	if perSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSec), burst)
}

func acceptOptions(origins []string) *websocket.AcceptOptions {
	var patterns []string
	for _, o := range origins {
		if o == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}
