package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Event is one inbound channel event queued for insert.
type Event struct {
	ID         uuid.UUID
	Topic      string
	Event      string
	Payload    []byte // JSON object
	ReceivedAt time.Time
}

// Config holds recorder batching settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a partial batch waits
	BufferSize    int           // Max queued events before Record drops
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// DB sends a batch of queued statements. *pgxpool.Pool satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Observer receives batch outcomes.
type Observer interface {
	BatchWritten(rows int, d time.Duration)
	BatchFailed(rows int)
	EventDropped()
}

type noopObserver struct{}

func (noopObserver) BatchWritten(int, time.Duration) {}
func (noopObserver) BatchFailed(int)                 {}
func (noopObserver) EventDropped()                   {}

// Stats tracks recorder counters.
type Stats struct {
	Queued    int64 // Events accepted by Record
	Dropped   int64 // Events rejected (buffer full or stopped)
	Inserts   int64 // Rows inserted
	Conflicts int64 // Rows skipped because the id already existed
	Errors    int64 // Failed batches
	Flushes   int64 // Successful batches
}
