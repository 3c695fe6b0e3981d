package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	sinkBufferSize    = 1024
	sinkBatchSize     = 50
	sinkFlushInterval = 5 * time.Second
)

// sinkJob is one unit of work for the background writer
type sinkJob struct {
	record  *StatRecord
	deltas  []StatsDelta
	counted bool
	result  *matchResult
}

type matchResult struct {
	matchID string
	arena   string
	winner  Team
	players int
}

// StatsSink persists statistics events off the simulation goroutine. Events
// are captured on the bus, queued without blocking and written in batches.
type StatsSink struct {
	db   *DB
	jobs chan sinkJob
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu      sync.Mutex
	dropped int
}

// NewStatsSink starts the background writer
func NewStatsSink(db *DB) *StatsSink {
	s := &StatsSink{
		db:   db,
		jobs: make(chan sinkJob, sinkBufferSize),
		stop: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// Attach subscribes the sink to the statistics events of bus
func (s *StatsSink) Attach(bus *EventBus) {
	for _, kind := range []EventKind{EventStatsShot, EventStatsHit, EventStatsKill} {
		bus.AddListener(s, kind, s.statsListener(kind), PriorityHigh)
	}
	bus.AddListener(s, EventStatsSend, s.onStatsSend, PriorityHigh)
	bus.AddListener(s, EventDBPlayersUpdate, s.onPlayersUpdate, PriorityHigh)
	bus.AddListener(s, EventDBPlayerUpdate, s.onPlayerUpdate, PriorityHigh)
}

func (s *StatsSink) statsListener(kind EventKind) Callback {
	return func(payload any) error {
		ev := payload.(*StatsEvent)
		var ext string
		if p := ev.Match.Player(ev.Player); p != nil {
			ext = p.ExternalID
		}
		return s.record(kind, ev.Match.ID, ext, struct {
			Player PlayerID `msgpack:"pid"`
			Target PlayerID `msgpack:"target,omitempty"`
			Damage float64  `msgpack:"dmg,omitempty"`
		}{ev.Player, ev.Target, ev.Damage})
	}
}

func (s *StatsSink) onStatsSend(payload any) error {
	ev := payload.(*StatsSendEvent)
	s.enqueue(sinkJob{result: &matchResult{
		matchID: ev.Match.ID,
		arena:   ev.Arena,
		winner:  ev.Winner,
		players: len(ev.Stats),
	}})
	for _, row := range ev.Stats {
		if err := s.record(EventStatsSend, ev.Match.ID, row.ExternalID, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *StatsSink) onPlayersUpdate(payload any) error {
	ev := payload.(*PlayersUpdateEvent)
	s.enqueue(sinkJob{deltas: append([]StatsDelta(nil), ev.Deltas...), counted: true})
	return nil
}

func (s *StatsSink) onPlayerUpdate(payload any) error {
	ev := payload.(*PlayerUpdateEvent)
	s.enqueue(sinkJob{deltas: []StatsDelta{ev.Delta}, counted: true})
	return nil
}

func (s *StatsSink) record(kind EventKind, matchID, ext string, v any) error {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	s.enqueue(sinkJob{record: &StatRecord{
		Kind:       kind.String(),
		MatchID:    matchID,
		ExternalID: ext,
		Payload:    b,
		At:         time.Now(),
	}})
	return nil
}

// enqueue never blocks the simulation; a full queue drops the job
func (s *StatsSink) enqueue(job sinkJob) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.jobs <- job:
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		log.Warn().Int("dropped", n).Msg("stats sink queue full")
	}
}

// Dropped returns the number of jobs lost to a full queue
func (s *StatsSink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Stop flushes everything queued and waits for the writer
func (s *StatsSink) Stop() {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
	})
}

func (s *StatsSink) writer() {
	defer s.wg.Done()

	batch := make([]sinkJob, 0, sinkBatchSize)
	ticker := time.NewTicker(sinkFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case job := <-s.jobs:
			batch = append(batch, job)
			if len(batch) >= sinkBatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.stop:
			for {
				select {
				case job := <-s.jobs:
					batch = append(batch, job)
				default:
					s.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes one batch in queue order
func (s *StatsSink) flush(batch []sinkJob) {
	if s.db == nil || len(batch) == 0 {
		return
	}
	var records []StatRecord
	writeRecords := func() {
		if err := s.db.InsertRecords(records); err != nil {
			log.Error().Err(err).Int("records", len(records)).Msg("stats sink: insert failed")
		}
		records = records[:0]
	}
	for _, job := range batch {
		switch {
		case job.record != nil:
			records = append(records, *job.record)
		case job.result != nil:
			writeRecords()
			r := job.result
			if err := s.db.RecordMatch(r.matchID, r.arena, r.winner, r.players); err != nil {
				log.Error().Err(err).Str("match", r.matchID).Msg("stats sink: match result failed")
			}
		case len(job.deltas) > 0:
			writeRecords()
			if err := s.db.ApplyDeltas(job.deltas, job.counted); err != nil {
				log.Error().Err(err).Int("players", len(job.deltas)).Msg("stats sink: player update failed")
			}
		}
	}
	writeRecords()
}
