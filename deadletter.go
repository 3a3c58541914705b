package main

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// a message body that could not be parsed, kept for later inspection
type PoisonRecord struct {
	ID         string
	QueueName  string
	Body       string
	Reason     string
	ReceivedAt time.Time
}

// captures poison messages when the deadletter policy is active
type DeadLetterStore interface {
	// records a poison message before it is acknowledged
	Capture(ctx context.Context, record PoisonRecord) error

	// releases any resources, could be a noop if not required
	Close() error
}

type InMemoryDeadLetterStore struct {
	mu      sync.RWMutex
	records []PoisonRecord
}

func NewInMemoryDeadLetterStore() *InMemoryDeadLetterStore {
	return &InMemoryDeadLetterStore{}
}

func (m *InMemoryDeadLetterStore) Capture(ctx context.Context, record PoisonRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, record)
	return nil
}

func (m *InMemoryDeadLetterStore) Records() []PoisonRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := make([]PoisonRecord, len(m.records))
	copy(records, m.records)
	return records
}

func (m *InMemoryDeadLetterStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = nil
	return nil
}

type PostgresDeadLetterStore struct {
	db *sql.DB
}

func NewPostgresDeadLetterStore(databaseURL string) (*PostgresDeadLetterStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDeadLetterStore{db: db}, nil
}

const capturePoisonMessage = `-- name: CapturePoisonMessage :exec
INSERT INTO poison_messages (id, queue_name, body, reason, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING
`

func (p *PostgresDeadLetterStore) Capture(ctx context.Context, record PoisonRecord) error {
	_, err := p.db.ExecContext(ctx, capturePoisonMessage,
		record.ID,
		record.QueueName,
		record.Body,
		record.Reason,
		record.ReceivedAt,
	)
	return err
}

func (p *PostgresDeadLetterStore) Close() error {
	return p.db.Close()
}
