package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orbitsync/orbitsync/internal/core/events"
	"github.com/orbitsync/orbitsync/internal/core/observability/log"
	"github.com/orbitsync/orbitsync/internal/core/room"
)

// Sink receives tick snapshots for delivery. Implementations must not block
// indefinitely; the broadcaster calls Deliver outside all locks but on the
// tick path.
type Sink interface {
	Deliver(sessionIDs []string, ev events.Outbound)
}

// Config tunes the tick loop.
type Config struct {
	// Period is the tick interval; DT the simulated seconds per tick.
	Period time.Duration
	DT     float64
	// Workers bounds how many rooms step concurrently within one tick.
	Workers int
}

// Broadcaster advances every populated room at a fixed rate and pushes the
// resulting snapshots to the sink. Rooms advance independently; one room's
// failure never aborts the tick for the others.
type Broadcaster struct {
	registry *room.Registry
	sink     Sink
	config   Config
	logger   log.Log

	running  int32 // atomic bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(registry *room.Registry, sink Sink, config Config, logger log.Log) *Broadcaster {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.DT <= 0 {
		config.DT = config.Period.Seconds()
	}
	return &Broadcaster{
		registry: registry,
		sink:     sink,
		config:   config,
		logger:   logger.With(log.String("component", "broadcaster")),
	}
}

// Start launches the tick loop.
func (b *Broadcaster) Start() error {
	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		return ErrAlreadyRunning
	}
	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.loop()
	b.logger.Info("broadcaster started",
		log.Duration("period", b.config.Period),
		log.Float64("dt", b.config.DT))
	return nil
}

// Stop signals the loop and waits for it to exit. The check is cooperative,
// once per tick, so Stop returns within roughly one tick period.
func (b *Broadcaster) Stop() error {
	if !atomic.CompareAndSwapInt32(&b.running, 1, 0) {
		return ErrNotRunning
	}
	close(b.stopChan)
	b.wg.Wait()
	b.logger.Info("broadcaster stopped")
	return nil
}

func (b *Broadcaster) loop() {
	defer b.wg.Done()
	for {
		start := time.Now()
		b.tickOnce()

		remaining := b.config.Period - time.Since(start)
		if remaining < 0 {
			remaining = 0
		}
		select {
		case <-b.stopChan:
			return
		case <-time.After(remaining):
		}
	}
}

// tickOnce advances all populated rooms. The registry lock is held only for
// the ID copy; each room is re-looked-up and may have vanished in between,
// which is a skip, not an error.
func (b *Broadcaster) tickOnce() {
	ids := b.registry.RoomIDs()
	if len(ids) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(b.config.Workers)
	for _, id := range ids {
		g.Go(func() error {
			b.tickRoom(id)
			return nil
		})
	}
	_ = g.Wait()
}

func (b *Broadcaster) tickRoom(roomID string) {
	r, ok := b.registry.Lookup(roomID)
	if !ok {
		b.logger.Debug("room vanished before tick", log.String("room_id", roomID))
		return
	}
	roster := r.Roster()
	if len(roster) == 0 {
		// Nobody is watching; don't burn cycles advancing it.
		return
	}

	snap, err := r.Step(b.config.DT)
	if err != nil {
		b.logger.Error("room step failed",
			log.String("room_id", roomID),
			log.Uint64("tick", snap.Tick),
			log.Error(err))
		return
	}

	b.sink.Deliver(roster, events.SimulationState{
		RoomID:   roomID,
		Tick:     snap.Tick,
		Objects:  snap.Objects,
		Energy:   snap.Energy,
		Checksum: events.StateChecksum(snap.Objects),
	})
}
