package db

import (
	"database/sql"
	"fmt"
)

// MaxBatchWrites is the largest number of statements committed in a single
// batch. The document store this schema replaced enforced a hard
// writes-per-batch cap and the client split deletions just under it; large
// deletions here keep the same shape so no single commit grows unbounded.
const MaxBatchWrites = 499

type batchStmt struct {
	query string
	args  []interface{}
}

// Batch accumulates write statements and commits them in groups of at most
// MaxBatchWrites, one transaction per group, in the order they were queued.
type Batch struct {
	conn  *sql.DB
	limit int
	stmts []batchStmt
}

func NewBatch(conn *sql.DB) *Batch {
	return &Batch{conn: conn, limit: MaxBatchWrites}
}

func (b *Batch) Add(query string, args ...interface{}) {
	b.stmts = append(b.stmts, batchStmt{query: query, args: args})
}

func (b *Batch) Len() int {
	return len(b.stmts)
}

// Commit flushes all queued statements and returns the number of
// transactions issued. Statements queued after a failed Commit are retained
// so the caller can retry.
func (b *Batch) Commit() (int, error) {
	batches := 0
	for len(b.stmts) > 0 {
		n := len(b.stmts)
		if n > b.limit {
			n = b.limit
		}

		tx, err := b.conn.Begin()
		if err != nil {
			return batches, fmt.Errorf("failed to begin batch: %w", err)
		}
		for _, s := range b.stmts[:n] {
			if _, err := tx.Exec(s.query, s.args...); err != nil {
				tx.Rollback()
				return batches, fmt.Errorf("batch write failed: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return batches, fmt.Errorf("failed to commit batch: %w", err)
		}

		b.stmts = b.stmts[n:]
		batches++
	}
	return batches, nil
}
