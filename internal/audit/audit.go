package audit

import (
	"fmt"
	"reflect"
)

// NoIndex marks a Source that was not produced by expanding a collection.
const NoIndex = -1

// Source identifies the node that produced a value. Index is set when the
// value is one element of an expanded collection result.
type Source struct {
	Node  string `json:"node" yaml:"node"`
	Index int    `json:"index" yaml:"index"`
}

// NodeSource returns an untagged Source for a node.
func NodeSource(node string) *Source {
	return &Source{Node: node, Index: NoIndex}
}

// String renders "node" or "node[i]".
func (s *Source) String() string {
	if s == nil {
		return ""
	}
	if s.Index == NoIndex {
		return s.Node
	}
	return fmt.Sprintf("%s[%d]", s.Node, s.Index)
}

// Indexed reports whether the source carries an element index.
func (s *Source) Indexed() bool {
	return s != nil && s.Index != NoIndex
}

// Parent is a single entry in an Audit's parent list: either *Audit or MergeGroup.
type Parent interface {
	parent()
}

// MergeGroup joins several independent predecessors into one parent entry.
// Each element is the audit list contributed by one predecessor.
type MergeGroup [][]*Audit

func (MergeGroup) parent() {}

// Audits returns every member audit in predecessor order.
func (g MergeGroup) Audits() []*Audit {
	var out []*Audit
	for _, list := range g {
		out = append(out, list...)
	}
	return out
}

// Audit is an immutable provenance record.
type Audit struct {
	// Seq is the logical clock value stamped by the engine when the record
	// was minted. Zero for audits built outside an engine.
	Seq int64

	Value   any
	Source  *Source
	Parents []Parent
}

func (*Audit) parent() {}

// New returns a leaf audit with no parents.
func New(src *Source, value any) *Audit {
	return &Audit{Value: value, Source: src, Parents: []Parent{}}
}

// Record builds an audit from one or more parent lists. A single list is
// attached as individual parents; more than one list is wrapped as a
// MergeGroup so the join of independent predecessors stays visible.
func Record(src *Source, value any, parents ...[]*Audit) *Audit {
	a := &Audit{Value: value, Source: src, Parents: []Parent{}}
	switch len(parents) {
	case 0:
	case 1:
		for _, p := range parents[0] {
			a.Parents = append(a.Parents, p)
		}
	default:
		group := make(MergeGroup, len(parents))
		copy(group, parents)
		a.Parents = append(a.Parents, group)
	}
	return a
}

// Derive builds an audit from an already assembled parent list. Used by
// dispatchers that mix plain audits and merge groups in one call.
func Derive(src *Source, value any, parents []Parent) *Audit {
	ps := make([]Parent, len(parents))
	copy(ps, parents)
	return &Audit{Value: value, Source: src, Parents: ps}
}

// Leaf reports whether the audit has no parents.
func (a *Audit) Leaf() bool {
	return len(a.Parents) == 0
}

// Node returns the originating node ID, or "" for raw input.
func (a *Audit) Node() string {
	if a.Source == nil {
		return ""
	}
	return a.Source.Node
}

// Trail reconstructs the lineage depth first. Each audit contributes
// extract(audit); a MergeGroup contributes one []any of sub-trails.
func (a *Audit) Trail(extract func(*Audit) any) []any {
	var out []any
	for _, p := range a.Parents {
		switch p := p.(type) {
		case *Audit:
			out = append(out, p.Trail(extract)...)
		case MergeGroup:
			group := make([]any, len(p))
			for i, list := range p {
				sub := []any{}
				for _, m := range list {
					sub = append(sub, m.Trail(extract)...)
				}
				group[i] = sub
			}
			out = append(out, group)
		}
	}
	return append(out, extract(a))
}

// Splat expands a collection value into one child audit per element, each
// tagged with its element index. Non-collection values splat to the
// receiver itself.
func (a *Audit) Splat() []*Audit {
	items, ok := Elements(a.Value)
	if !ok {
		return []*Audit{a}
	}
	out := make([]*Audit, len(items))
	for i, v := range items {
		out[i] = &Audit{
			Seq:     a.Seq,
			Value:   v,
			Source:  &Source{Node: a.Node(), Index: i},
			Parents: []Parent{a},
		}
	}
	return out
}

// Sources lists the distinct node IDs in the lineage, in trail order.
func (a *Audit) Sources() []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(*Audit)
	walk = func(x *Audit) {
		for _, p := range x.Parents {
			switch p := p.(type) {
			case *Audit:
				walk(p)
			case MergeGroup:
				for _, m := range p.Audits() {
					walk(m)
				}
			}
		}
		if n := x.Node(); n != "" && !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	walk(a)
	return out
}

// Elements returns the items of a slice or array value. Strings and byte
// slices are scalars.
func Elements(v any) ([]any, bool) {
	switch v := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// SourceValue is a Trail extractor yielding []any{source, value}, with a nil
// source for raw input.
func SourceValue(a *Audit) any {
	if a.Source == nil {
		return []any{nil, a.Value}
	}
	return []any{a.Source.String(), a.Value}
}
