package main

// Projectile is a shot travelling through one match. It moves in a straight
// line at the match's projectile speed until it hits something.
type Projectile struct {
	ID        uint32
	Origin    Vec2
	Position  Vec2
	Direction Vec2 // unit
	Shooter   PlayerID
}

// AddPacket announces the projectile to clients
func (p *Projectile) AddPacket() Packet {
	return FloatsExtraPacket(MsgProjectileAdd, uint8(p.Shooter),
		float32(p.ID),
		float32(p.Position.X), float32(p.Position.Y),
		float32(p.Direction.X), float32(p.Direction.Y))
}
