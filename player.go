package main

import "fmt"

const (
	PlayerBodyLength = 0.9
	PlayerBodyWidth  = 0.7
	PlayerMaxHealth  = 1.0
	PlayerMaxShield  = 1.0
)

// Connection is the transport collaborator seen by the core
type Connection interface {
	SendBinary(data []byte)
	Close() error
}

// PlayerID is the ephemeral connection id. It fits in one wire byte.
type PlayerID uint8

// Player is one connected client or bot
type Player struct {
	ID         PlayerID
	ExternalID string // durable identity, empty for guests
	Name       string
	Bot        bool

	Position     Vec2
	Velocity     Vec2
	BodyRotation float64
	HeadRotation float64

	Alive  bool
	Health float64
	Shield float64
	Ammo   int
	Reload float64 // progress towards the next round, [0,1)

	Team        Team
	SpeedBoost  bool
	RamCooldown bool
	Protected   bool
	Push        Vec2

	conn Connection
}

// NewPlayer creates a player bound to conn. Bots pass a nil conn.
func NewPlayer(id PlayerID, conn Connection, bot bool) *Player {
	name := fmt.Sprintf("Player %d", id)
	if bot {
		name = fmt.Sprintf("Bot %d", id)
	}
	return &Player{
		ID:     id,
		Name:   name,
		Bot:    bot,
		Health: PlayerMaxHealth,
		conn:   conn,
	}
}

// Send encodes and queues a packet. Bots and closed players drop it.
func (p *Player) Send(pkt Packet) {
	if p.conn == nil {
		return
	}
	p.conn.SendBinary(pkt.Encode())
}

// Alert sends a user-visible message
func (p *Player) Alert(msg string) {
	p.Send(StringPacket(MsgAlert, msg))
}

// ResetCombat restores full combat state for a fresh spawn
func (p *Player) ResetCombat(maxAmmo int) {
	p.Alive = true
	p.Health = PlayerMaxHealth
	p.Shield = PlayerMaxShield
	p.Ammo = maxAmmo
	p.Reload = 0
	p.Velocity = Vec2{}
	p.Push = Vec2{}
	p.SpeedBoost = false
	p.RamCooldown = false
}

// ClearMatchState drops everything a match assigned
func (p *Player) ClearMatchState() {
	p.Team = TeamNone
	p.Alive = false
	p.Protected = false
	p.Push = Vec2{}
	p.RamCooldown = false
}

// Body returns the corners of the player's body rectangle and its two axes
func (p *Player) Body() (corners [4]Vec2, axes [2]Vec2) {
	u := FromAngle(p.BodyRotation)
	v := u.Perp()
	hl := u.Scale(PlayerBodyLength / 2)
	hw := v.Scale(PlayerBodyWidth / 2)
	corners = [4]Vec2{
		p.Position.Add(hl).Add(hw),
		p.Position.Add(hl).Sub(hw),
		p.Position.Sub(hl).Sub(hw),
		p.Position.Sub(hl).Add(hw),
	}
	return corners, [2]Vec2{u, v}
}

// MovementPacket describes the player's transform to others
func (p *Player) MovementPacket() Packet {
	return FloatsExtraPacket(MsgMovement, uint8(p.ID),
		float32(p.Position.X), float32(p.Position.Y),
		float32(p.BodyRotation), float32(p.HeadRotation),
		float32(p.Velocity.X), float32(p.Velocity.Y), boolFloat(p.SpeedBoost))
}

func boolFloat(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

// HealthPacket describes the player's health and shield
func (p *Player) HealthPacket() Packet {
	return FloatsExtraPacket(MsgHealth, uint8(p.ID), float32(p.Health), float32(p.Shield))
}
