package hub

import (
	"context"
	"sort"

	"github.com/DoyleJ11/market-call-backend/internal/lobby"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// CreateLobby replies nil when the code is already taken.
type CreateLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type ListLobbies struct {
	Reply chan []string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Factory builds a fresh game for code. Each call gets its own session.
type Factory func(ctx context.Context, code string) *lobby.Lobby

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	factory Factory
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		factory: factory,
		log:     log.Named("hub"),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if h.live(msg.Code) != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.create(msg.Code)

			case GetLobby:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.Code); lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.create(msg.Code)

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					lb.Send(h.ctx, lobby.Shutdown{})
					delete(h.lobbies, msg.Code)
					h.log.Info("game removed", zap.String("game", msg.Code))
				}

			case ListLobbies:
				codes := make([]string, 0, len(h.lobbies))
				for code := range h.lobbies {
					if h.live(code) != nil {
						codes = append(codes, code)
					}
				}
				sort.Strings(codes)
				msg.Reply <- codes

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the lobby for code, forgetting it if it has already stopped.
func (h *Hub) live(code string) *lobby.Lobby {
	lb := h.lobbies[code]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, code)
		return nil
	default:
		return lb
	}
}

func (h *Hub) create(code string) *lobby.Lobby {
	lb := h.factory(h.ctx, code)
	h.lobbies[code] = lb
	h.log.Info("game created", zap.String("game", code))
	return lb
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(context.Background(), lobby.Shutdown{})
	}
	clear(h.lobbies)
	h.cancel()
}

// Lookup asks the hub for code. It returns nil if the game does not exist.
func (h *Hub) Lookup(ctx context.Context, code string) *lobby.Lobby {
	return h.ask(ctx, func(reply chan *lobby.Lobby) HubMsg {
		return GetLobby{Code: code, Reply: reply}
	})
}

// Create starts a game under code. It returns nil if code is taken.
func (h *Hub) Create(ctx context.Context, code string) *lobby.Lobby {
	return h.ask(ctx, func(reply chan *lobby.Lobby) HubMsg {
		return CreateLobby{Code: code, Reply: reply}
	})
}

func (h *Hub) Ensure(ctx context.Context, code string) *lobby.Lobby {
	return h.ask(ctx, func(reply chan *lobby.Lobby) HubMsg {
		return EnsureLobby{Code: code, Reply: reply}
	})
}

// List returns the codes of running games, sorted.
func (h *Hub) List(ctx context.Context) []string {
	reply := make(chan []string, 1)
	select {
	case h.inbox <- ListLobbies{Reply: reply}:
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case codes := <-reply:
		return codes
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Remove stops the game under code. It reports false if no such game runs.
func (h *Hub) Remove(ctx context.Context, code string) bool {
	if h.Lookup(ctx, code) == nil {
		return false
	}
	select {
	case h.inbox <- RemoveLobby{Code: code}:
		return true
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (h *Hub) ask(ctx context.Context, build func(chan *lobby.Lobby) HubMsg) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	select {
	case h.inbox <- build(reply):
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case lb := <-reply:
		return lb
	case <-h.ctx.Done():
		return nil
	case <-ctx.Done():
		return nil
	}
}
