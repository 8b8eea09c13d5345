package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/ir"
)

// Result is one stored node result.
type Result struct {
	ID    string `json:"id"`
	Wave  string `json:"wave"`
	Node  string `json:"node"`
	Seq   int64  `json:"seq"`
	Value any    `json:"value"`
	Trail []any  `json:"trail"`
	Hash  string `json:"hash"`
}

// WaveSummary describes one stored wave.
type WaveSummary struct {
	Wave    string `json:"wave"`
	Results int    `json:"results"`
	Nodes   int    `json:"nodes"`
}

// NewResult captures a result audit: its node, seq, value and its
// source/value trail (audit.SourceValue).
func NewResult(wave string, a *audit.Audit) Result {
	return Result{
		Wave:  wave,
		Node:  a.Node(),
		Seq:   a.Seq,
		Value: a.Value,
		Trail: a.Trail(audit.SourceValue),
	}
}

// WriteResult inserts a result. An empty ID is filled with a fresh UUIDv7
// and the content hash is always recomputed. Uses ON CONFLICT(id) DO
// NOTHING for idempotency.
func (s *Store) WriteResult(ctx context.Context, r Result) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("write result: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	out, err := s.insertResult(ctx, tx, r)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("write result: commit: %w", err)
	}
	return out, nil
}

// WriteResults inserts every collected audit of a wave in one transaction.
func (s *Store) WriteResults(ctx context.Context, wave string, audits []*audit.Audit) ([]Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("write results: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	out := make([]Result, 0, len(audits))
	for _, a := range audits {
		r, err := s.insertResult(ctx, tx, NewResult(wave, a))
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("write results: commit: %w", err)
	}
	return out, nil
}

func (s *Store) insertResult(ctx context.Context, tx *sql.Tx, r Result) (Result, error) {
	if r.Wave == "" {
		return Result{}, fmt.Errorf("write result: empty wave")
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.Trail == nil {
		r.Trail = []any{}
	}

	valueJSON, err := marshalValue("value", r.Value)
	if err != nil {
		return Result{}, fmt.Errorf("write result %s: %w", r.Node, err)
	}
	trailJSON, err := marshalValue("trail", r.Trail)
	if err != nil {
		return Result{}, fmt.Errorf("write result %s: %w", r.Node, err)
	}
	if r.Hash, err = ir.ResultHash(r.Node, r.Value, r.Trail); err != nil {
		return Result{}, fmt.Errorf("write result %s: %w", r.Node, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO results
		(id, wave, node, seq, value, trail, hash, format_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.Wave,
		r.Node,
		r.Seq,
		valueJSON,
		trailJSON,
		r.Hash,
		ir.FormatVersion,
	)
	if err != nil {
		return Result{}, fmt.Errorf("write result %s: %w", r.Node, err)
	}
	return r, nil
}

// ReadResults returns every result of a wave.
// Ordered by seq ASC, id ASC COLLATE BINARY. Returns an empty slice (not
// nil) when the wave has no results.
func (s *Store) ReadResults(ctx context.Context, wave string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, wave, node, seq, value, trail, hash
		FROM results
		WHERE wave = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, wave)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// ReadResult returns one result by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadResult(ctx context.Context, id string) (Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wave, node, seq, value, trail, hash
		FROM results
		WHERE id = ?
	`, id)
	return scanResult(row)
}

// ReadWaves lists stored waves in the order they were first written.
func (s *Store) ReadWaves(ctx context.Context) ([]WaveSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT wave, COUNT(*), COUNT(DISTINCT node)
		FROM results
		GROUP BY wave
		ORDER BY MIN(id) COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query waves: %w", err)
	}
	defer rows.Close()

	waves := []WaveSummary{}
	for rows.Next() {
		var w WaveSummary
		if err := rows.Scan(&w.Wave, &w.Results, &w.Nodes); err != nil {
			return nil, fmt.Errorf("scan wave: %w", err)
		}
		waves = append(waves, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waves: %w", err)
	}
	return waves, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (Result, error) {
	var r Result
	var valueJSON, trailJSON string
	if err := row.Scan(&r.ID, &r.Wave, &r.Node, &r.Seq, &valueJSON, &trailJSON, &r.Hash); err != nil {
		if err == sql.ErrNoRows {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("scan result: %w", err)
	}

	var err error
	if r.Value, err = unmarshalValue("value", valueJSON); err != nil {
		return Result{}, err
	}
	if r.Trail, err = unmarshalList("trail", trailJSON); err != nil {
		return Result{}, err
	}
	return r, nil
}
