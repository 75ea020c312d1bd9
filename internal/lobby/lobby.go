package lobby

import (
	"context"
	"errors"

	"github.com/DoyleJ11/market-call-backend/internal/archive"
	"github.com/DoyleJ11/market-call-backend/internal/economy"
	"github.com/DoyleJ11/market-call-backend/internal/engine"
	"github.com/DoyleJ11/market-call-backend/internal/projector"
	"github.com/DoyleJ11/market-call-backend/internal/registry"
	"github.com/DoyleJ11/market-call-backend/internal/types"
	"go.uber.org/zap"
)

type Msg interface{ isLobbyMsg() }

// FromClient carries one decoded command from a connection. ResumeID and
// HostKey are only read for join and host join.
type FromClient struct {
	ClientID string
	Cmd      engine.Command
	ResumeID registry.PlayerID
	HostKey  string
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan types.ServerMessage // where this client wants to receive messages
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Version    int
	NumClients int
	NumHosts   int
	State      projector.View
}

type Options struct {
	HostKey  string // empty leaves the host room open
	Recorder archive.Recorder
	Logger   *zap.Logger
}

type client struct {
	outbox chan types.ServerMessage
	player registry.PlayerID
	host   bool
}

type Lobby struct {
	code     string
	inbox    chan Msg
	session  *engine.Session
	version  int
	clients  map[string]*client
	hostKey  string
	recorder archive.Recorder
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewLobby(parent context.Context, code string, session *engine.Session, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if opts.Recorder == nil {
		opts.Recorder = archive.Discard
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	l := &Lobby{
		code:     code,
		inbox:    make(chan Msg, 64),
		session:  session,
		clients:  make(map[string]*client),
		hostKey:  opts.HostKey,
		recorder: opts.Recorder,
		log:      opts.Logger.Named("lobby").With(zap.String("game", code)),
		ctx:      ctx,
		cancel:   cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				l.clients[msg.ClientID] = &client{outbox: msg.Outbox}
				l.send(msg.ClientID, l.state())

			case Leave:
				if c, ok := l.clients[msg.ClientID]; ok {
					close(c.outbox)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				l.handle(msg)

			case GetState:
				msg.Reply <- l.view()

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handle(msg FromClient) {
	c, ok := l.clients[msg.ClientID]
	if !ok {
		return
	}

	cmd := msg.Cmd
	cmd.Host = c.host
	switch cmd.Type {
	case engine.CmdJoin:
		c.player = l.bind(c, msg.ResumeID)
		cmd.PlayerID = c.player
	case engine.CmdHostJoin:
		if l.hostKey != "" && msg.HostKey != l.hostKey {
			l.log.Debug("host join refused", zap.String("client", msg.ClientID))
			return
		}
		c.host = true
		cmd.Host = true
	default:
		cmd.PlayerID = c.player
	}

	events, err := l.session.Apply(cmd)
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrRejected):
		l.log.Debug("command rejected",
			zap.String("client", msg.ClientID),
			zap.String("cmd", string(cmd.Type)),
			zap.Error(err))
	case errors.Is(err, economy.ErrInsufficientFunds):
		l.log.Info("tip purchase declined", zap.String("player", string(cmd.PlayerID)))
	default:
		l.log.Warn("command failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
	}

	l.dispatch(msg.ClientID, events)
}

// bind picks the player a connection acts as. An existing binding wins,
// then a known resume id, then a fresh id.
func (l *Lobby) bind(c *client, resume registry.PlayerID) registry.PlayerID {
	if c.player != "" {
		return c.player
	}
	if resume != "" {
		if _, ok := l.session.Player(resume); ok {
			return resume
		}
	}
	return registry.NewPlayerID()
}

func (l *Lobby) dispatch(sender string, events []engine.Event) {
	for _, ev := range events {
		switch ev.Type {
		case engine.EvtStateChanged:
			l.version++
			l.broadcast(l.state())
			continue
		case engine.EvtGameReset:
			for _, c := range l.clients {
				c.player = ""
			}
			l.log.Info("game reset")
			continue
		case engine.EvtRoundResult, engine.EvtFinalResult:
			l.record(ev)
		}

		out, ok := projector.Notify(ev)
		if !ok {
			continue
		}
		out.Version = l.version

		switch ev.To {
		case engine.ToAll:
			l.broadcast(out)
		case engine.ToSender:
			l.send(sender, out)
		case engine.ToHost:
			for id, c := range l.clients {
				if c.host {
					l.send(id, out)
				}
			}
		case engine.ToPlayer:
			for id, c := range l.clients {
				if c.player == ev.PlayerID {
					l.send(id, out)
				}
			}
		}
	}
}

func (l *Lobby) record(ev engine.Event) {
	name := ""
	pnl := ev.Pnl
	if p, ok := l.session.Player(ev.PlayerID); ok {
		name = p.Name
		if ev.Type == engine.EvtFinalResult {
			pnl = p.Pnl
		}
	}
	l.recorder.Record(archive.Result{
		Game:     l.code,
		RoundID:  ev.RoundID,
		PlayerID: string(ev.PlayerID),
		Name:     name,
		Pnl:      pnl,
		Capital:  ev.Capital,
		Final:    ev.Type == engine.EvtFinalResult,
	})
}

func (l *Lobby) state() types.ServerMessage {
	return types.ServerMessage{
		Type:    types.MsgState,
		Version: l.version,
		Data:    projector.PublicSnapshot(l.session),
	}
}

func (l *Lobby) view() View {
	v := View{
		Version:    l.version,
		NumClients: len(l.clients),
		State:      projector.PublicSnapshot(l.session),
	}
	for _, c := range l.clients {
		if c.host {
			v.NumHosts++
		}
	}
	return v
}

func (l *Lobby) shutdown() {
	for id, c := range l.clients {
		close(c.outbox) // Tell client no more messages
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(msg types.ServerMessage) {
	for id := range l.clients {
		l.send(id, msg)
	}
}

func (l *Lobby) send(id string, msg types.ServerMessage) {
	c, ok := l.clients[id]
	if !ok {
		return
	}
	select {
	case c.outbox <- msg:
		//ok
	default:
		// Client is slow/full - drop them.
		l.log.Warn("dropping slow client", zap.String("client", id))
		close(c.outbox)
		delete(l.clients, id)
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) Code() string { return l.code }

// Done is closed once the lobby has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Send delivers m unless the lobby has stopped or ctx ends first.
func (l *Lobby) Send(ctx context.Context, m Msg) bool {
	if l.ctx.Err() != nil {
		return false
	}
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}
