package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const writeTimeout = 2 * time.Second

// Entry is one proxied /v1/messages request.
type Entry struct {
	ID            uuid.UUID
	RequestID     string
	Model         string
	Stream        bool
	Status        int
	BackendStatus int
	Clamped       bool
	PromptMode    string
	SystemChars   int
	Termination   string
	Duration      time.Duration
	ReceivedAt    time.Time
}

// Recorder stores journal entries. Record must not block the request.
type Recorder interface {
	Record(e Entry)
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(Entry) {}

// Postgres writes entries to the request_log table asynchronously.
type Postgres struct {
	pool *pgxpool.Pool
	wg   sync.WaitGroup
}

// Connect opens a pool for dsn.
func Connect(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse journal dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect journal database: %w", err)
	}
	return NewPostgres(pool), nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping checks the database is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Record inserts e in the background (fire-and-forget).
func (p *Postgres) Record(e Entry) {
	if p.pool == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := p.insert(ctx, e); err != nil {
			slog.Warn("failed to write request journal", "request_id", e.RequestID, "error", err)
		}
	}()
}

func (p *Postgres) insert(ctx context.Context, e Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO request_log (id, request_id, model, stream, status, backend_status,
		                         clamped, prompt_mode, system_chars, termination,
		                         duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		e.ID, e.RequestID, e.Model, e.Stream, e.Status, e.BackendStatus,
		e.Clamped, e.PromptMode, e.SystemChars, e.Termination,
		e.Duration.Milliseconds(), e.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request_log: %w", err)
	}
	return nil
}

// Close waits for in-flight writes and closes the pool.
func (p *Postgres) Close() {
	p.wg.Wait()
	if p.pool != nil {
		p.pool.Close()
	}
}
