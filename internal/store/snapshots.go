package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/weft/internal/ir"
)

// Snapshot is one stored engine document.
type Snapshot struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Hash       string         `json:"hash"`
	Document   map[string]any `json:"document"`
	CreatedSeq int64          `json:"created_seq"`
}

// WriteSnapshot stores doc under name and returns the stored record.
// seq is the engine clock position at export time.
func (s *Store) WriteSnapshot(ctx context.Context, name string, doc map[string]any, seq int64) (Snapshot, error) {
	if name == "" {
		return Snapshot{}, fmt.Errorf("write snapshot: empty name")
	}
	docJSON, err := marshalValue("document", doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s: %w", name, err)
	}
	hash, err := ir.SnapshotHash(doc)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s: %w", name, err)
	}

	snap := Snapshot{
		ID:         s.newID(),
		Name:       name,
		Hash:       hash,
		Document:   doc,
		CreatedSeq: seq,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots
		(id, name, hash, document, created_seq, format_version)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		snap.ID,
		snap.Name,
		snap.Hash,
		docJSON,
		snap.CreatedSeq,
		ir.FormatVersion,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("write snapshot %s: %w", name, err)
	}
	return snap, nil
}

// ReadSnapshot returns a snapshot by ID and checks its content hash.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSnapshot(ctx context.Context, id string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, hash, document, created_seq
		FROM snapshots
		WHERE id = ?
	`, id)
	return scanSnapshot(row)
}

// LatestSnapshot returns the most recent snapshot stored under name.
// Returns sql.ErrNoRows if there is none.
func (s *Store) LatestSnapshot(ctx context.Context, name string) (Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, hash, document, created_seq
		FROM snapshots
		WHERE name = ?
		ORDER BY created_seq DESC, id COLLATE BINARY DESC
		LIMIT 1
	`, name)
	return scanSnapshot(row)
}

// ListSnapshots returns every snapshot without its document, oldest first.
func (s *Store) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, hash, created_seq
		FROM snapshots
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	snaps := []Snapshot{}
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.Name, &snap.Hash, &snap.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

func scanSnapshot(row scanner) (Snapshot, error) {
	var snap Snapshot
	var docJSON string
	if err := row.Scan(&snap.ID, &snap.Name, &snap.Hash, &docJSON, &snap.CreatedSeq); err != nil {
		if err == sql.ErrNoRows {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}

	doc, err := unmarshalObject("document", docJSON)
	if err != nil {
		return Snapshot{}, err
	}
	hash, err := ir.SnapshotHash(doc)
	if err != nil {
		return Snapshot{}, err
	}
	if hash != snap.Hash {
		return Snapshot{}, fmt.Errorf("snapshot %s: hash mismatch (stored %s, computed %s)", snap.ID, snap.Hash, hash)
	}
	snap.Document = doc
	return snap, nil
}
