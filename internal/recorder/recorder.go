package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/phx-stream/internal/buffer"
	"github.com/rickgao/phx-stream/internal/phx"
)

const insertEvent = `
	INSERT INTO channel_events (id, topic, event, payload, received_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING`

// Recorder consumes events from its input buffer and writes them to the
// channel_events table.
type Recorder struct {
	cfg      Config
	logger   *slog.Logger
	observer Observer

	input *buffer.GrowableBuffer[Event]
	db    DB

	// Batching
	batch   []Event
	batchMu sync.Mutex

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	consumer sync.WaitGroup
	flusher  sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New creates a Recorder. A nil observer or logger is replaced with a no-op
// or slog.Default().
func New(cfg Config, db DB, observer Observer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	initial := cfg.BatchSize
	if cfg.BufferSize > 0 && cfg.BufferSize < initial {
		initial = cfg.BufferSize
	}
	return &Recorder{
		cfg:      cfg,
		logger:   logger,
		observer: observer,
		input:    buffer.NewGrowableBuffer[Event](initial),
		db:       db,
		batch:    make([]Event, 0, cfg.BatchSize),
	}
}

// Record queues an inbound event. It never blocks; it returns false when the
// recorder is stopped or the buffer is full.
func (r *Recorder) Record(topic, event string, msg phx.Message) bool {
	if msg == nil {
		msg = phx.Message{}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.Warn("recorder: unencodable payload", "topic", topic, "event", event, "error", err)
		r.drop()
		return false
	}

	if r.cfg.BufferSize > 0 && r.input.Len() >= r.cfg.BufferSize {
		r.drop()
		return false
	}

	ok := r.input.Send(Event{
		ID:         newEventID(),
		Topic:      topic,
		Event:      event,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	})
	if !ok {
		r.drop()
		return false
	}

	r.statsMu.Lock()
	r.stats.Queued++
	r.statsMu.Unlock()
	return true
}

// Start begins consuming events and writing to the database.
func (r *Recorder) Start(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("start recorder: no database")
	}
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.consumer.Add(1)
	go r.consumeLoop()

	r.flusher.Add(1)
	go r.flushLoop(time.NewTicker(r.cfg.FlushInterval))

	r.logger.Info("recorder started",
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, writes everything still queued, then returns.
// ctx bounds the wait and the final insert.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	r.input.Close()

	done := make(chan struct{})
	go func() {
		r.consumer.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out", "pending", r.input.Len())
	}

	if r.cancel != nil {
		r.cancel()
	}
	r.flusher.Wait()

	// Final flush on the caller's context; r.ctx is already cancelled.
	r.flush(ctx)

	r.logger.Info("recorder stopped")
	return nil
}

// Stats returns a snapshot of the counters.
func (r *Recorder) Stats() Stats {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.stats
}

// consumeLoop moves events from the input buffer into the batch until the
// buffer is closed and drained.
func (r *Recorder) consumeLoop() {
	defer r.consumer.Done()

	for {
		ev, ok := r.input.Receive()
		if !ok {
			return
		}

		r.batchMu.Lock()
		r.batch = append(r.batch, ev)
		shouldFlush := len(r.batch) >= r.cfg.BatchSize
		r.batchMu.Unlock()

		if shouldFlush {
			r.flush(r.ctx)
		}
	}
}

// flushLoop periodically flushes partial batches.
func (r *Recorder) flushLoop(ticker *time.Ticker) {
	defer r.flusher.Done()
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.flush(r.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]Event, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.statsMu.Lock()
		r.stats.Errors++
		r.statsMu.Unlock()
		r.observer.BatchFailed(len(batch))
		return
	}

	elapsed := time.Since(start)
	r.statsMu.Lock()
	r.stats.Inserts += int64(len(batch) - conflicts)
	r.stats.Conflicts += int64(conflicts)
	r.stats.Flushes++
	r.statsMu.Unlock()
	r.observer.BatchWritten(len(batch)-conflicts, elapsed)

	r.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", elapsed,
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, events []Event) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(insertEvent, e.ID, e.Topic, e.Event, e.Payload, e.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}

func (r *Recorder) drop() {
	r.statsMu.Lock()
	r.stats.Dropped++
	r.statsMu.Unlock()
	r.observer.EventDropped()
}

// newEventID returns a time-ordered id so inserts stay index-local.
func newEventID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
