package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/roach88/weft/internal/audit"
	"github.com/roach88/weft/internal/schema"
)

// Snapshot is the exported state of an engine: its registered nodes and
// joins as a schema, plus the queued work with the provenance of every
// queued audit.
type Snapshot struct {
	Name   string        `json:"name,omitempty"`
	Seq    int64         `json:"seq"`
	Graph  schema.Schema `json:"graph"`
	Queue  []QueuedEntry `json:"queue"`
	Audits *audit.Table  `json:"audits"`
}

// QueuedEntry is one exported queue entry.
type QueuedEntry struct {
	Node   string        `json:"node"`
	Inputs []QueuedInput `json:"inputs"`
}

// QueuedInput is either a raw value or a reference into Snapshot.Audits.
type QueuedInput struct {
	Value any        `json:"value,omitempty"`
	Ref   *audit.Ref `json:"ref,omitempty"`
}

// Export captures the registered nodes, the joins between them and the
// queue. Nodes must have been created with a catalog kind (see WithKind)
// so Restore can rebuild their callables. Registered objects that are not
// nodes are skipped.
func (e *Engine) Export() (*Snapshot, error) {
	nodes := e.Nodes()
	index := make(map[*Node]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
	}

	snap := &Snapshot{
		Seq:   e.clock.Current(),
		Graph: schema.Schema{Nodes: make([]schema.NodeSpec, len(nodes))},
		Queue: []QueuedEntry{},
	}
	if skipped := len(e.Names()) - len(nodes); skipped > 0 {
		e.logger.Warn("export skipped non-node objects", "count", skipped)
	}

	for i, n := range nodes {
		if n.kind == "" {
			return nil, fmt.Errorf("export: node %s has no catalog kind", n.id)
		}
		spec := schema.NodeSpec{Name: n.id, Kind: n.kind, Args: n.args}
		for _, d := range n.Dependencies() {
			di, ok := index[d]
			if !ok {
				return nil, fmt.Errorf("export: dependency %s of %s is not registered", d.id, n.id)
			}
			spec.DependsOn = append(spec.DependsOn, di)
		}
		snap.Graph.Nodes[i] = spec
	}

	for _, c := range e.Joins() {
		js, err := c.Spec(index)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		snap.Graph.Joins = append(snap.Graph.Joins, js)
	}

	entries := e.queue.Entries()
	var roots []*audit.Audit
	for _, entry := range entries {
		if _, ok := index[entry.Node]; !ok {
			return nil, fmt.Errorf("export: queued node %s is not registered", entry.Node.id)
		}
		for _, in := range entry.Inputs {
			switch v := in.(type) {
			case *audit.Audit:
				roots = append(roots, v)
			case audit.MergeGroup:
				roots = append(roots, v.Audits()...)
			}
		}
	}
	snap.Audits = audit.Flatten(roots...)

	// Hand out record IDs in the same order the roots were collected.
	next := 0
	id := func() int {
		r := snap.Audits.Roots[next]
		next++
		return r
	}
	for _, entry := range entries {
		qe := QueuedEntry{Node: entry.Node.id, Inputs: make([]QueuedInput, len(entry.Inputs))}
		for k, in := range entry.Inputs {
			switch v := in.(type) {
			case *audit.Audit:
				qe.Inputs[k] = QueuedInput{Ref: &audit.Ref{Kind: audit.RefAudit, ID: id()}}
			case audit.MergeGroup:
				group := make([][]int, len(v))
				for g, list := range v {
					group[g] = make([]int, len(list))
					for j := range list {
						group[g][j] = id()
					}
				}
				qe.Inputs[k] = QueuedInput{Ref: &audit.Ref{Kind: audit.RefGroup, Group: group}}
			default:
				qe.Inputs[k] = QueuedInput{Value: v}
			}
		}
		snap.Queue = append(snap.Queue, qe)
	}

	e.logger.Debug("engine exported",
		"nodes", len(nodes),
		"joins", len(snap.Graph.Joins),
		"queued", len(snap.Queue),
		"audit_records", len(snap.Audits.Records),
	)
	return snap, nil
}

// Restore builds a new engine from a snapshot: nodes are recreated through
// cat, joins and dependencies are rewired, and the queue is refilled with
// the exported entries. Nothing is enqueued from rounds. The clock resumes
// after the exported sequence number unless opts override it.
func Restore(ctx context.Context, snap *Snapshot, cat Catalog, opts ...EngineOption) (*Engine, error) {
	e := New(append([]EngineOption{WithClock(NewClockAt(snap.Seq))}, opts...)...)

	if len(snap.Graph.Nodes) > 0 {
		if verrs := schema.Validate(&snap.Graph); len(verrs) > 0 {
			return nil, fmt.Errorf("restore: %w", verrs[0])
		}
		if _, err := e.wire(&snap.Graph, cat); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}

	var built []*audit.Audit
	if snap.Audits != nil {
		var err error
		if built, err = snap.Audits.Build(); err != nil {
			return nil, fmt.Errorf("restore audits: %w", err)
		}
	}
	record := func(id int) (*audit.Audit, error) {
		if id < 0 || id >= len(built) {
			return nil, fmt.Errorf("restore: audit record %d out of range", id)
		}
		return built[id], nil
	}

	entries := make([]Entry, 0, len(snap.Queue))
	for _, qe := range snap.Queue {
		n, err := e.Node(qe.Node)
		if err != nil {
			return nil, fmt.Errorf("restore queue: %w", err)
		}
		inputs := make([]any, len(qe.Inputs))
		for k, in := range qe.Inputs {
			if in.Ref == nil {
				inputs[k] = in.Value
				continue
			}
			switch in.Ref.Kind {
			case audit.RefAudit:
				a, err := record(in.Ref.ID)
				if err != nil {
					return nil, err
				}
				inputs[k] = a
			case audit.RefGroup:
				group := make(audit.MergeGroup, len(in.Ref.Group))
				for g, ids := range in.Ref.Group {
					group[g] = make([]*audit.Audit, len(ids))
					for j, id := range ids {
						if group[g][j], err = record(id); err != nil {
							return nil, err
						}
					}
				}
				inputs[k] = group
			default:
				return nil, fmt.Errorf("restore: unknown input ref kind %q", in.Ref.Kind)
			}
		}
		entries = append(entries, Entry{Node: n, Inputs: inputs})
	}
	if err := e.queue.Concat(entries); err != nil {
		return nil, err
	}

	e.Log(ctx, slog.LevelDebug, "engine restored",
		"snapshot", snap.Name,
		"nodes", len(snap.Graph.Nodes),
		"queued", len(entries),
	)
	return e, nil
}

// Document renders the snapshot as nested maps and lists, the shape used
// for storage and transmission. Integral numbers are ints.
func (s *Snapshot) Document() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	var doc map[string]any
	if err := decodeNumbers(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot document: %w", err)
	}
	return normalize(doc).(map[string]any), nil
}

// SnapshotFromDocument reverses Document.
func SnapshotFromDocument(doc map[string]any) (*Snapshot, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot document: %w", err)
	}
	return UnmarshalSnapshot(data)
}

// UnmarshalSnapshot decodes a JSON snapshot. Integral numbers inside
// arguments, inputs and audit values come back as int.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := decodeNumbers(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range s.Graph.Nodes {
		s.Graph.Nodes[i].Args = normalizeList(s.Graph.Nodes[i].Args)
		s.Graph.Nodes[i].Inputs = normalizeList(s.Graph.Nodes[i].Inputs)
	}
	for i := range s.Queue {
		for k := range s.Queue[i].Inputs {
			s.Queue[i].Inputs[k].Value = normalize(s.Queue[i].Inputs[k].Value)
		}
	}
	if s.Audits != nil {
		for i := range s.Audits.Records {
			s.Audits.Records[i].Value = normalize(s.Audits.Records[i].Value)
		}
	}
	return &s, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeList(vs []any) []any {
	for i, v := range vs {
		vs[i] = normalize(v)
	}
	return vs
}

// normalize replaces json.Number with int when integral, float64 otherwise.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i)
		}
		f, _ := x.Float64()
		return f
	case []any:
		return normalizeList(x)
	case map[string]any:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	default:
		return v
	}
}
