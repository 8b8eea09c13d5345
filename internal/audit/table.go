package audit

import (
	"fmt"
)

// Ref kinds used in a TableRecord's parent list.
const (
	RefAudit = "audit"
	RefGroup = "group"
)

// Ref is one parent entry of a TableRecord, addressed by record handle.
type Ref struct {
	Kind  string  `json:"kind" yaml:"kind"`
	ID    int     `json:"id,omitempty" yaml:"id,omitempty"`
	Group [][]int `json:"group,omitempty" yaml:"group,omitempty"`
}

// TableRecord is the flattened form of one Audit. Parents always reference
// records with a smaller ID.
type TableRecord struct {
	ID      int     `json:"id" yaml:"id"`
	Seq     int64   `json:"seq,omitempty" yaml:"seq,omitempty"`
	Value   any     `json:"value" yaml:"value"`
	Source  *Source `json:"source,omitempty" yaml:"source,omitempty"`
	Parents []Ref   `json:"parents,omitempty" yaml:"parents,omitempty"`
}

// Table is an arena of audit records plus the handles of the audits that
// were flattened into it.
type Table struct {
	Records []TableRecord `json:"records" yaml:"records"`
	Roots   []int         `json:"roots" yaml:"roots"`
}

// Flatten writes the lineage of every root into a single table. Audits
// reachable from several roots are stored once.
func Flatten(roots ...*Audit) *Table {
	t := &Table{Records: []TableRecord{}, Roots: make([]int, len(roots))}
	ids := make(map[*Audit]int)

	var visit func(*Audit) int
	visit = func(a *Audit) int {
		if id, ok := ids[a]; ok {
			return id
		}
		refs := make([]Ref, 0, len(a.Parents))
		for _, p := range a.Parents {
			switch p := p.(type) {
			case *Audit:
				refs = append(refs, Ref{Kind: RefAudit, ID: visit(p)})
			case MergeGroup:
				group := make([][]int, len(p))
				for i, list := range p {
					group[i] = make([]int, len(list))
					for j, m := range list {
						group[i][j] = visit(m)
					}
				}
				refs = append(refs, Ref{Kind: RefGroup, Group: group})
			}
		}
		id := len(t.Records)
		var src *Source
		if a.Source != nil {
			s := *a.Source
			src = &s
		}
		t.Records = append(t.Records, TableRecord{
			ID:      id,
			Seq:     a.Seq,
			Value:   a.Value,
			Source:  src,
			Parents: refs,
		})
		ids[a] = id
		return id
	}

	for i, r := range roots {
		t.Roots[i] = visit(r)
	}
	return t
}

// Unflatten rebuilds the audits named by the table roots.
func (t *Table) Unflatten() ([]*Audit, error) {
	built, err := t.Build()
	if err != nil {
		return nil, err
	}

	out := make([]*Audit, len(t.Roots))
	for i, id := range t.Roots {
		if id < 0 || id >= len(built) {
			return nil, fmt.Errorf("root %d: record %d out of range", i, id)
		}
		out[i] = built[id]
	}
	return out, nil
}

// Build rebuilds every record; the result is indexed by record ID.
func (t *Table) Build() ([]*Audit, error) {
	built := make([]*Audit, len(t.Records))
	lookup := func(owner, id int) (*Audit, error) {
		if id < 0 || id >= owner {
			return nil, fmt.Errorf("record %d: parent %d out of range", owner, id)
		}
		return built[id], nil
	}

	for i, rec := range t.Records {
		if rec.ID != i {
			return nil, fmt.Errorf("record %d: id mismatch (%d)", i, rec.ID)
		}
		parents := make([]Parent, 0, len(rec.Parents))
		for _, ref := range rec.Parents {
			switch ref.Kind {
			case RefAudit:
				p, err := lookup(i, ref.ID)
				if err != nil {
					return nil, err
				}
				parents = append(parents, p)
			case RefGroup:
				group := make(MergeGroup, len(ref.Group))
				for g, ids := range ref.Group {
					group[g] = make([]*Audit, len(ids))
					for j, id := range ids {
						p, err := lookup(i, id)
						if err != nil {
							return nil, err
						}
						group[g][j] = p
					}
				}
				parents = append(parents, group)
			default:
				return nil, fmt.Errorf("record %d: unknown parent kind %q", i, ref.Kind)
			}
		}
		var src *Source
		if rec.Source != nil {
			s := *rec.Source
			src = &s
		}
		built[i] = &Audit{Seq: rec.Seq, Value: rec.Value, Source: src, Parents: parents}
	}
	return built, nil
}
