package main

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

const maxNameLength = 16

// IdentityVerifier resolves a client token into a durable identity. It may
// block and is never called on the simulation goroutine.
type IdentityVerifier interface {
	Verify(token string) (Identity, error)
}

// ConnectionHandler turns transport callbacks into players and decoded
// packets into typed bus events
type ConnectionHandler struct {
	world    *World
	players  map[Connection]*Player
	verifier IdentityVerifier
	post     func(func())
}

// NewConnectionHandler subscribes the handler to the connection events.
// post hands a closure back to the simulation goroutine.
func NewConnectionHandler(w *World, verifier IdentityVerifier, post func(func())) *ConnectionHandler {
	h := &ConnectionHandler{
		world:    w,
		players:  make(map[Connection]*Player),
		verifier: verifier,
		post:     post,
	}
	w.Bus.AddListener(h, EventConnectionOpened, h.onOpened, PriorityLow)
	w.Bus.AddListener(h, EventConnectionMessage, h.onMessage, PriorityLow)
	w.Bus.AddListener(h, EventConnectionClosed, h.onClosed, PriorityLow)
	w.Bus.AddListener(h, EventPlayerIdentified, h.onIdentified, PriorityLow)
	return h
}

// PlayerOf returns the player behind conn or nil
func (h *ConnectionHandler) PlayerOf(conn Connection) *Player {
	return h.players[conn]
}

func (h *ConnectionHandler) onOpened(payload any) error {
	ev := payload.(*ConnectionOpened)
	p, err := h.world.Registry.NewPlayer(ev.Conn, false)
	if err != nil {
		_ = ev.Conn.Close()
		return err
	}
	h.players[ev.Conn] = p
	p.Send(NumberPacket(MsgYourID, uint8(p.ID)))
	log.Debug().Uint8("player", uint8(p.ID)).Int("connected", h.world.Registry.Count()).Msg("player connected")
	return nil
}

func (h *ConnectionHandler) onClosed(payload any) error {
	ev := payload.(*ConnectionClosed)
	p, ok := h.players[ev.Conn]
	if !ok {
		return nil
	}
	delete(h.players, ev.Conn)
	err := h.world.Bus.CallEvent(EventPlayerLeave, p)
	h.world.Registry.Remove(p.ID)
	log.Debug().
		Uint8("player", uint8(p.ID)).
		Int("code", ev.Code).
		Str("reason", ev.Reason).
		Msg("player disconnected")
	return err
}

func (h *ConnectionHandler) onMessage(payload any) error {
	ev := payload.(*ConnectionMessage)
	p, ok := h.players[ev.Conn]
	if !ok {
		return nil
	}
	pkt, err := DecodePacket(ev.Data)
	if err != nil {
		log.Warn().Err(err).Uint8("player", uint8(p.ID)).Msg("dropping malformed packet")
		return nil
	}
	if !pkt.Kind.isInbound() {
		log.Warn().Uint8("player", uint8(p.ID)).Uint8("header", uint8(pkt.Kind)).Msg("unknown header")
		return nil
	}
	if want := inboundPayload[pkt.Kind]; pkt.Type != want {
		log.Warn().
			Uint8("player", uint8(p.ID)).
			Uint8("header", uint8(pkt.Kind)).
			Uint8("type", uint8(pkt.Type)).
			Msg("unexpected payload type")
		return nil
	}
	return h.dispatch(p, pkt)
}

var inboundPayload = map[MessageKind]PayloadType{
	MsgJoin:           PayloadString,
	MsgJoinPreference: PayloadIntArray,
	MsgMove:           PayloadFloatArray,
	MsgShoot:          PayloadHeaderOnly,
	MsgVote:           PayloadNumber,
	MsgChat:           PayloadString,
	MsgLeave:          PayloadHeaderOnly,
	MsgIdentify:       PayloadString,
	MsgName:           PayloadString,
}

func (h *ConnectionHandler) dispatch(p *Player, pkt Packet) error {
	bus := h.world.Bus
	switch pkt.Kind {
	case MsgJoin:
		return bus.CallEvent(EventJoinRequest, &JoinRequestEvent{Player: p, Request: JoinRequest{Code: pkt.Text}})
	case MsgJoinPreference:
		req := JoinRequest{}
		if len(pkt.Ints) > 0 {
			req.Private = pkt.Ints[0] != 0
		}
		if len(pkt.Ints) > 1 {
			req.Bots = pkt.Ints[1] != 0
		}
		return bus.CallEvent(EventJoinRequest, &JoinRequestEvent{Player: p, Request: req})
	case MsgMove:
		if len(pkt.Floats) < 6 {
			log.Warn().Uint8("player", uint8(p.ID)).Int("floats", len(pkt.Floats)).Msg("short movement packet")
			return nil
		}
		f := pkt.Floats
		return bus.CallEvent(EventPlayerMove, &MoveEvent{
			Player:       p,
			Position:     V(float64(f[0]), float64(f[1])),
			BodyRotation: float64(f[2]),
			HeadRotation: float64(f[3]),
			Velocity:     V(float64(f[4]), float64(f[5])),
			Boost:        len(f) > 6 && f[6] != 0,
		})
	case MsgShoot:
		return bus.CallEvent(EventPlayerShoot, &ShootEvent{Player: p})
	case MsgVote:
		return bus.CallEvent(EventVote, &VoteEvent{Player: p, Index: int(pkt.Number)})
	case MsgChat:
		return bus.CallEvent(EventChat, &ChatEvent{Player: p, Text: pkt.Text})
	case MsgLeave:
		return bus.CallEvent(EventPlayerLeave, p)
	case MsgIdentify:
		h.identify(p, pkt.Text)
	case MsgName:
		h.rename(p, pkt.Text)
	}
	return nil
}

func (h *ConnectionHandler) rename(p *Player, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		name = string([]rune(name)[:maxNameLength])
	}
	p.Name = name
}

// identify verifies token off the simulation goroutine and posts the result back
func (h *ConnectionHandler) identify(p *Player, token string) {
	if h.verifier == nil || h.post == nil {
		p.Alert("identity not supported")
		return
	}
	id := p.ID
	go func() {
		identity, err := h.verifier.Verify(token)
		h.post(func() {
			_ = h.world.Bus.CallEvent(EventPlayerIdentified, &IdentifiedEvent{
				PlayerID: id,
				Player:   p,
				Identity: identity,
				Err:      err,
			})
		})
	}()
}

func (h *ConnectionHandler) onIdentified(payload any) error {
	ev := payload.(*IdentifiedEvent)
	// the player may have disconnected and the id been reused meanwhile
	if h.world.Registry.Player(ev.PlayerID) != ev.Player {
		return nil
	}
	p := ev.Player
	if ev.Err != nil {
		log.Info().Err(ev.Err).Uint8("player", uint8(p.ID)).Msg("identity rejected")
		p.Alert("identity rejected")
		return nil
	}
	p.ExternalID = ev.Identity.ExternalID
	if ev.Identity.Name != "" {
		h.rename(p, ev.Identity.Name)
	}
	p.Send(StringPacket(MsgIdentified, p.ExternalID))
	log.Info().Uint8("player", uint8(p.ID)).Str("external", p.ExternalID).Msg("player identified")
	return nil
}
