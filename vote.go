package main

import (
	"strings"

	"github.com/rotisserie/eris"
)

// VotableArena is one candidate of a vote with its tally
type VotableArena struct {
	Arena *Arena
	Votes int
}

// VoteHandler runs the arena vote of one lobby between matches. Besides the
// candidates there is an implicit random option at index len(candidates).
type VoteHandler struct {
	world       *World
	previous    *Arena
	options     []*VotableArena
	randomVotes int
	ballots     map[PlayerID]int
}

// NewVoteHandler draws fresh candidates, excluding previous unless the
// catalog is too small
func NewVoteHandler(w *World, previous *Arena) *VoteHandler {
	v := &VoteHandler{
		world:    w,
		previous: previous,
		ballots:  make(map[PlayerID]int),
	}
	count := w.Config.VoteOptions
	pool := excludeArenas(w.Arenas, previous)
	if len(pool) < count {
		pool = w.Arenas
	}
	if count > len(pool) {
		count = len(pool)
	}
	for _, i := range w.Rand.Perm(len(pool))[:count] {
		v.options = append(v.options, &VotableArena{Arena: pool[i]})
	}
	return v
}

func excludeArenas(arenas []*Arena, excluded ...*Arena) []*Arena {
	out := make([]*Arena, 0, len(arenas))
outer:
	for _, a := range arenas {
		for _, e := range excluded {
			if a == e {
				continue outer
			}
		}
		out = append(out, a)
	}
	return out
}

// Options returns the candidates
func (v *VoteHandler) Options() []*VotableArena {
	return v.options
}

// RandomIndex is the index of the random option
func (v *VoteHandler) RandomIndex() int {
	return len(v.options)
}

// Vote records id's choice, replacing an earlier one
func (v *VoteHandler) Vote(id PlayerID, index int) error {
	if index < 0 || index > v.RandomIndex() {
		return eris.Wrapf(ErrInvalidVote, "index %d of %d options", index, v.RandomIndex()+1)
	}
	v.Withdraw(id)
	v.ballots[id] = index
	v.adjust(index, 1)
	return nil
}

// Withdraw removes id's vote, if any
func (v *VoteHandler) Withdraw(id PlayerID) {
	prev, ok := v.ballots[id]
	if !ok {
		return
	}
	delete(v.ballots, id)
	v.adjust(prev, -1)
}

func (v *VoteHandler) adjust(index, delta int) {
	if index == v.RandomIndex() {
		v.randomVotes += delta
		return
	}
	v.options[index].Votes += delta
}

// Tally returns the candidate tallies followed by the random tally
func (v *VoteHandler) Tally() []int {
	out := make([]int, 0, len(v.options)+1)
	for _, o := range v.options {
		out = append(out, o.Votes)
	}
	return append(out, v.randomVotes)
}

// Select picks the arena for a match of n players among the arenas n fits.
// The best candidate (ties random) must beat the random option; on a tie a
// coin decides. It returns nil when no arena fits.
func (v *VoteHandler) Select(n int) *Arena {
	var best []*VotableArena
	for _, o := range v.options {
		if !o.Arena.Fits(n) {
			continue
		}
		switch {
		case len(best) == 0 || o.Votes > best[0].Votes:
			best = []*VotableArena{o}
		case o.Votes == best[0].Votes:
			best = append(best, o)
		}
	}
	if len(best) == 0 {
		return v.randomArena(n)
	}
	winner := best[v.world.Rand.IntN(len(best))]
	switch {
	case winner.Votes > v.randomVotes:
		return winner.Arena
	case winner.Votes == v.randomVotes && v.world.Rand.IntN(2) == 0:
		return winner.Arena
	}
	return v.randomArena(n)
}

// randomArena draws an arena n fits, outside the candidates and the previous
// arena when the catalog allows it
func (v *VoteHandler) randomArena(n int) *Arena {
	fitting := make([]*Arena, 0, len(v.world.Arenas))
	for _, a := range v.world.Arenas {
		if a.Fits(n) {
			fitting = append(fitting, a)
		}
	}
	excluded := []*Arena{v.previous}
	for _, o := range v.options {
		excluded = append(excluded, o.Arena)
	}
	pool := excludeArenas(fitting, excluded...)
	if len(pool) == 0 {
		pool = excludeArenas(fitting, v.previous)
	}
	if len(pool) == 0 {
		pool = fitting
	}
	if len(pool) == 0 {
		return nil
	}
	return pool[v.world.Rand.IntN(len(pool))]
}

// OptionsPacket lists the candidate titles
func (v *VoteHandler) OptionsPacket() Packet {
	titles := make([]string, 0, len(v.options))
	for _, o := range v.options {
		titles = append(titles, o.Arena.Title)
	}
	return StringPacket(MsgVoteOptions, strings.Join(titles, "\n"))
}

// TallyPacket carries the current tallies
func (v *VoteHandler) TallyPacket() Packet {
	tally := v.Tally()
	out := make([]uint8, len(tally))
	for i, n := range tally {
		out[i] = clampByte(n)
	}
	return IntsPacket(MsgVoteTally, out...)
}
