package main

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const maxChatLength = 200

// LobbyState is the lifecycle of a lobby
type LobbyState uint8

const (
	LobbyWaiting LobbyState = iota
	LobbyStarting
	LobbyRunning
)

func (s LobbyState) String() string {
	switch s {
	case LobbyWaiting:
		return "waiting"
	case LobbyStarting:
		return "starting"
	case LobbyRunning:
		return "running"
	}
	return "unknown"
}

// Lobby groups players between and during matches.
// WAITING -> STARTING -> RUNNING -> WAITING.
type Lobby struct {
	ID      uuid.UUID
	Code    string
	Private bool
	Bots    bool

	world      *World
	players    []*Player
	state      LobbyState
	match      *Match
	votes      *VoteHandler
	previous   *Arena
	countdown  *Task
	remaining  int
	timers     timerSet
	minPlayers int
	maxPlayers int
	destroyed  bool
}

// NewLobby creates an empty lobby and subscribes it to chat, votes and match
// outcomes
func NewLobby(w *World, private, bots bool, code string) *Lobby {
	minPlayers, maxPlayers := catalogPlayerBounds(w.Arenas)
	l := &Lobby{
		ID:         uuid.New(),
		Code:       code,
		Private:    private,
		Bots:       bots,
		world:      w,
		minPlayers: minPlayers,
		maxPlayers: maxPlayers,
	}
	l.votes = NewVoteHandler(w, nil)

	bus := w.Bus
	bus.AddListener(l, EventChat, l.onChat, PriorityMedium)
	bus.AddListener(l, EventVote, l.onVote, PriorityMedium)
	bus.AddListener(l, EventMatchTimerComplete, l.onMatchOutcome, PriorityMedium)
	bus.AddListener(l, EventMatchComplete, l.onMatchOutcome, PriorityMedium)
	return l
}

func (l *Lobby) State() LobbyState   { return l.state }
func (l *Lobby) Match() *Match       { return l.match }
func (l *Lobby) Votes() *VoteHandler { return l.votes }
func (l *Lobby) Players() []*Player  { return l.players }
func (l *Lobby) Count() int          { return len(l.players) }
func (l *Lobby) MinPlayers() int     { return l.minPlayers }
func (l *Lobby) MaxPlayers() int     { return l.maxPlayers }
func (l *Lobby) Destroyed() bool     { return l.destroyed }

// RealCount returns the number of non-bot members
func (l *Lobby) RealCount() int {
	n := 0
	for _, p := range l.players {
		if !p.Bot {
			n++
		}
	}
	return n
}

// RealPlayers returns the non-bot members
func (l *Lobby) RealPlayers() []*Player {
	var out []*Player
	for _, p := range l.players {
		if !p.Bot {
			out = append(out, p)
		}
	}
	return out
}

// Spare is the room left for real players. Bots count as room when the
// lobby backfills.
func (l *Lobby) Spare() int {
	spare := l.maxPlayers - len(l.players)
	if l.Bots {
		spare += len(l.players) - l.RealCount()
	}
	if spare < 0 {
		return 0
	}
	return spare
}

// HasCapacity reports whether a real player can join
func (l *Lobby) HasCapacity() bool {
	return !l.destroyed && l.Spare() > 0
}

// Has reports whether id is a member
func (l *Lobby) Has(id PlayerID) bool {
	return l.indexOf(id) >= 0
}

func (l *Lobby) indexOf(id PlayerID) int {
	for i, p := range l.players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// AddPlayer lets p in. Real joiners of a full backfilled lobby replace a bot.
func (l *Lobby) AddPlayer(p *Player) error {
	if l.destroyed {
		return eris.Wrapf(ErrLobbyFull, "lobby %s is closed", l.ID)
	}
	if l.Has(p.ID) {
		return nil
	}
	if len(l.players) >= l.maxPlayers {
		if p.Bot || !l.dropBot() {
			return eris.Wrapf(ErrLobbyFull, "lobby %s has %d players", l.ID, len(l.players))
		}
	}
	l.addMember(p)
	if !p.Bot {
		l.fillBots()
	}
	l.checkShortfall()
	if l.destroyed {
		return nil
	}
	l.checkStart()
	return nil
}

func (l *Lobby) addMember(p *Player) {
	l.players = append(l.players, p)
	l.world.Registry.SetLobby(p.ID, l)

	if l.Private {
		p.Send(StringPacket(MsgLobbyCode, l.Code))
	}
	l.Broadcast(FloatsExtraPacket(MsgPlayerJoined, uint8(p.ID), float32(TeamNone)))
	for _, other := range l.players {
		if other != p {
			p.Send(FloatsExtraPacket(MsgPlayerJoined, uint8(other.ID), float32(other.Team)))
		}
	}
	l.broadcastState()

	switch l.state {
	case LobbyRunning:
		l.match.AddPlayer(p)
	case LobbyStarting:
		p.Send(l.votes.OptionsPacket())
		p.Send(l.votes.TallyPacket())
		p.Send(NumberPacket(MsgCountdown, clampByte(l.remaining)))
	default:
		p.Send(l.votes.OptionsPacket())
		p.Send(l.votes.TallyPacket())
	}
	log.Debug().Str("lobby", l.ID.String()).Uint8("player", uint8(p.ID)).Bool("bot", p.Bot).Msg("joined lobby")
}

// RemovePlayer takes id out of the lobby. Losing the last real player drops
// every bot; running matches finish when they fall short of players.
func (l *Lobby) RemovePlayer(id PlayerID) {
	if !l.removeMember(id) {
		return
	}
	if l.RealCount() == 0 {
		for len(l.players) > 0 {
			bot := l.players[0]
			l.removeMember(bot.ID)
			l.world.Registry.Remove(bot.ID)
		}
	}

	switch l.state {
	case LobbyStarting:
		if len(l.players) < l.minPlayers {
			l.cancelCountdown()
		}
	case LobbyRunning:
		l.checkShortfall()
	}
}

// checkShortfall finishes a running match that lost too many players, a
// whole team or every real player
func (l *Lobby) checkShortfall() {
	if l.state != LobbyRunning || l.match == nil {
		return
	}
	if len(l.players) < l.minPlayers || l.RealCount() == 0 || !l.match.HasEnoughPlayers() {
		l.finishMatch(l.match.Winner())
	}
}

func (l *Lobby) removeMember(id PlayerID) bool {
	i := l.indexOf(id)
	if i < 0 {
		return false
	}
	l.players = append(l.players[:i], l.players[i+1:]...)
	if l.world.Registry.LobbyOf(id) == l {
		l.world.Registry.ClearLobby(id)
	}
	l.votes.Withdraw(id)
	if l.match != nil {
		l.match.RemovePlayer(id)
	}
	l.Broadcast(NumberPacket(MsgPlayerLeft, uint8(id)))
	l.broadcastState()
	return true
}

// dropBot removes one bot to make room, reporting whether there was one
func (l *Lobby) dropBot() bool {
	if !l.Bots {
		return false
	}
	for i := len(l.players) - 1; i >= 0; i-- {
		if p := l.players[i]; p.Bot {
			l.removeMember(p.ID)
			l.world.Registry.Remove(p.ID)
			return true
		}
	}
	return false
}

// fillBots tops a backfilled lobby up to the minimum while a real player is in
func (l *Lobby) fillBots() {
	if !l.Bots || l.RealCount() == 0 {
		return
	}
	for len(l.players) < l.minPlayers {
		bot, err := l.world.Registry.NewPlayer(nil, true)
		if err != nil {
			log.Warn().Err(err).Str("lobby", l.ID.String()).Msg("cannot add bot")
			return
		}
		l.addMember(bot)
	}
}

// checkStart begins the countdown once enough players wait
func (l *Lobby) checkStart() {
	if l.state == LobbyWaiting && len(l.players) >= l.minPlayers {
		l.startCountdown()
	}
}

func (l *Lobby) startCountdown() {
	l.state = LobbyStarting
	l.remaining = l.world.Config.CountdownSeconds
	l.Broadcast(NumberPacket(MsgCountdown, clampByte(l.remaining)))
	l.broadcastState()
	l.countdown = l.timers.add(l.world.Scheduler.Every(time.Second, l.countdownTick))
	log.Debug().Str("lobby", l.ID.String()).Int("seconds", l.remaining).Msg("countdown started")
}

func (l *Lobby) countdownTick() {
	if l.state != LobbyStarting {
		return
	}
	if len(l.players) < l.minPlayers {
		l.cancelCountdown()
		return
	}
	l.remaining--
	if l.remaining > 0 {
		l.Broadcast(NumberPacket(MsgCountdown, clampByte(l.remaining)))
		return
	}
	l.countdown.Cancel()
	l.countdown = nil
	l.startMatch()
}

func (l *Lobby) cancelCountdown() {
	l.countdown.Cancel()
	l.countdown = nil
	l.remaining = 0
	l.state = LobbyWaiting
	l.Broadcast(NumberPacket(MsgCountdown, 0))
	l.broadcastState()
	log.Debug().Str("lobby", l.ID.String()).Msg("countdown cancelled")
}

func (l *Lobby) startMatch() {
	if len(l.players) < l.minPlayers {
		l.state = LobbyWaiting
		l.broadcastState()
		return
	}
	arena := l.votes.Select(len(l.players))
	if arena == nil {
		log.Error().Err(ErrNoArenas).Str("lobby", l.ID.String()).Int("players", len(l.players)).Msg("cannot start match")
		l.state = LobbyWaiting
		l.broadcastState()
		return
	}
	l.match = NewMatch(l.world, uuid.NewString(), arena, l.pickGamemode(), l.players)
	l.state = LobbyRunning
	l.broadcastState()
	l.match.Start()
}

func (l *Lobby) pickGamemode() GamemodeKind {
	switch l.world.Config.Gamemode {
	case GamemodeSettingElimination:
		return GamemodeElimination
	case GamemodeSettingRandom:
		if l.world.Rand.IntN(2) == 1 {
			return GamemodeElimination
		}
	}
	return GamemodeDeathmatch
}

func (l *Lobby) onMatchOutcome(payload any) error {
	ev := payload.(*MatchCompleteEvent)
	if l.match == nil || ev.Match != l.match {
		return nil
	}
	l.finishMatch(ev.Winner)
	return nil
}

// finishMatch tears the match down, goes back to WAITING and lets
// matchmaking absorb the roster before starting over
func (l *Lobby) finishMatch(winner Team) {
	m := l.match
	if m == nil {
		return
	}
	l.match = nil
	m.End(winner)
	l.previous = m.Arena
	l.state = LobbyWaiting
	l.votes = NewVoteHandler(l.world, l.previous)
	l.Broadcast(l.votes.OptionsPacket())
	l.Broadcast(l.votes.TallyPacket())
	l.broadcastState()

	l.world.Bus.CallEvent(EventMatchFinished, &MatchFinishedEvent{Lobby: l})
	if l.destroyed {
		return
	}
	l.fillBots()
	l.checkStart()
}

func (l *Lobby) onChat(payload any) error {
	ev := payload.(*ChatEvent)
	if l.world.Registry.LobbyOf(ev.Player.ID) != l {
		return nil
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > maxChatLength {
		text = string([]rune(text)[:maxChatLength])
	}
	l.Broadcast(StringPacket(MsgChatRelay, ev.Player.Name+": "+text))
	return nil
}

func (l *Lobby) onVote(payload any) error {
	ev := payload.(*VoteEvent)
	if l.world.Registry.LobbyOf(ev.Player.ID) != l || l.state == LobbyRunning {
		return nil
	}
	if err := l.votes.Vote(ev.Player.ID, ev.Index); err != nil {
		ev.Player.Alert("invalid vote")
		return err
	}
	l.Broadcast(l.votes.TallyPacket())
	return nil
}

// Broadcast sends pkt to every member
func (l *Lobby) Broadcast(pkt Packet) {
	data := pkt.Encode()
	for _, p := range l.players {
		if p.conn != nil {
			p.conn.SendBinary(data)
		}
	}
}

func (l *Lobby) broadcastState() {
	l.Broadcast(IntsPacket(MsgLobbyState,
		uint8(l.state), clampByte(len(l.players)), clampByte(l.minPlayers), clampByte(l.maxPlayers)))
}

// Destroy detaches the lobby and ends a running match without results
func (l *Lobby) Destroy() {
	if l.destroyed {
		return
	}
	l.destroyed = true
	l.timers.cancelAll()
	l.world.Bus.RemoveOwner(l)
	if l.match != nil {
		l.match.Destroy()
		l.match = nil
	}
	for _, p := range l.players {
		if l.world.Registry.LobbyOf(p.ID) == l {
			l.world.Registry.ClearLobby(p.ID)
		}
		if p.Bot {
			l.world.Registry.Remove(p.ID)
		}
	}
	l.players = nil
	log.Debug().Str("lobby", l.ID.String()).Msg("lobby retired")
}
