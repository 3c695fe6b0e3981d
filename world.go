package main

import (
	"math/rand/v2"
	"time"
)

// World bundles the shared simulation services every component is handed
// explicitly: bus, registry, scheduler, config, arena catalog and rng.
type World struct {
	Bus       *EventBus
	Registry  *Registry
	Scheduler *Scheduler
	Config    *Config
	Arenas    []*Arena
	Rand      *rand.Rand
}

// NewWorld wires a fresh set of services
func NewWorld(cfg *Config, arenas []*Arena, start time.Time, seed uint64) *World {
	return &World{
		Bus:       NewEventBus(),
		Registry:  NewRegistry(),
		Scheduler: NewScheduler(start),
		Config:    cfg,
		Arenas:    arenas,
		Rand:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}
