package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is a mutex-guarded in-process Executor. It backs tests and the
// default development mode; data does not survive a restart.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]*memNode
	rels  map[relKey]map[string]any
	out   map[string]map[relKey]struct{}
	in    map[string]map[relKey]struct{}
}

type memNode struct {
	label string
	props map[string]any
}

type relKey struct {
	from, to, typ string
}

// NewMemory returns an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]*memNode),
		rels:  make(map[relKey]map[string]any),
		out:   make(map[string]map[relKey]struct{}),
		in:    make(map[string]map[relKey]struct{}),
	}
}

func (m *Memory) CreateNode(_ context.Context, label string, props map[string]any) error {
	id, ok := props["id"].(string)
	if !ok || id == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	m.nodes[id] = &memNode{label: label, props: cloneProps(props)}
	return nil
}

func (m *Memory) UpdateNode(_ context.Context, id string, props map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	node, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for k, v := range cloneProps(props) {
		node.props[k] = v
	}
	node.props["id"] = id
	return nil
}

func (m *Memory) DeleteNode(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	for key := range m.out[id] {
		m.detach(key)
	}
	for key := range m.in[id] {
		m.detach(key)
	}
	delete(m.out, id)
	delete(m.in, id)
	delete(m.nodes, id)
	return nil
}

func (m *Memory) detach(key relKey) {
	delete(m.rels, key)
	delete(m.out[key.from], key)
	delete(m.in[key.to], key)
}

func (m *Memory) CreateRelationship(_ context.Context, fromID, toID, relType string, props map[string]any) error {
	if relType == "" {
		return fmt.Errorf("%w: relationship type required", ErrInvalidQuery)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.nodes[fromID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, fromID)
	}
	if _, ok := m.nodes[toID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, toID)
	}
	key := relKey{from: fromID, to: toID, typ: relType}
	if existing, ok := m.rels[key]; ok {
		for k, v := range cloneProps(props) {
			existing[k] = v
		}
		return nil
	}
	m.rels[key] = cloneProps(props)
	if m.out[fromID] == nil {
		m.out[fromID] = make(map[relKey]struct{})
	}
	if m.in[toID] == nil {
		m.in[toID] = make(map[relKey]struct{})
	}
	m.out[fromID][key] = struct{}{}
	m.in[toID][key] = struct{}{}
	return nil
}

func (m *Memory) RemoveRelationships(_ context.Context, fromID, toID, relType string) error {
	if fromID == "" {
		return fmt.Errorf("%w: from id required", ErrInvalidQuery)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.out[fromID] {
		if toID != "" && key.to != toID {
			continue
		}
		if relType != "" && key.typ != relType {
			continue
		}
		m.detach(key)
	}
	return nil
}

func (m *Memory) ExecuteQuery(_ context.Context, q Query) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var rows []Row
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := m.nodes[id]
		if q.Label != "" && node.label != q.Label {
			continue
		}
		if !matchConds(node.props, q.Where) {
			continue
		}
		if q.Text != nil && !matchText(node.props, q.Text) {
			continue
		}
		if q.Rel == nil {
			rows = append(rows, cloneProps(node.props))
			continue
		}
		rows = append(rows, m.expandRel(id, node, q.Rel)...)
	}

	sortRows(rows, q.OrderBy)
	return paginate(rows, q.Offset, q.Limit), nil
}

func (m *Memory) expandRel(id string, node *memNode, rel *RelPattern) []Row {
	var edges map[relKey]struct{}
	if rel.Direction == DirectionIn {
		edges = m.in[id]
	} else {
		edges = m.out[id]
	}

	keys := make([]relKey, 0, len(edges))
	for key := range edges {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		if keys[i].to != keys[j].to {
			return keys[i].to < keys[j].to
		}
		return keys[i].typ < keys[j].typ
	})

	var rows []Row
	matched := false
	for _, key := range keys {
		if rel.Type != "" && key.typ != rel.Type {
			continue
		}
		otherID := key.to
		if rel.Direction == DirectionIn {
			otherID = key.from
		}
		target, ok := m.nodes[otherID]
		if !ok {
			continue
		}
		if rel.TargetLabel != "" && target.label != rel.TargetLabel {
			continue
		}
		if !matchConds(target.props, rel.TargetWhere) {
			continue
		}
		matched = true
		if rel.ReturnTarget || rel.ReturnRelProps {
			var row Row
			if rel.ReturnTarget {
				row = cloneProps(target.props)
			} else {
				row = cloneProps(node.props)
			}
			if rel.ReturnRelProps {
				for k, v := range cloneProps(m.rels[key]) {
					row[k] = v
				}
			}
			rows = append(rows, row)
		}
	}
	if matched && !rel.ReturnTarget && !rel.ReturnRelProps {
		rows = append(rows, cloneProps(node.props))
	}
	return rows
}

func matchConds(props map[string]any, conds []Cond) bool {
	for _, c := range conds {
		val, present := props[c.Field]
		switch c.Op {
		case OpEq:
			if !present || !valuesEqual(val, c.Value) {
				return false
			}
		case OpContainsFold:
			s, ok := val.(string)
			needle, ok2 := c.Value.(string)
			if !present || !ok || !ok2 || !strings.Contains(strings.ToLower(s), strings.ToLower(needle)) {
				return false
			}
		case OpIn:
			if !present || !valueIn(val, c.Value) {
				return false
			}
		case OpExists:
			if !present || isEmpty(val) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func matchText(props map[string]any, text *TextCond) bool {
	needle := strings.ToLower(text.Needle)
	for _, field := range text.Fields {
		if s, ok := props[field].(string); ok && strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

func valueIn(val, list any) bool {
	items, ok := list.([]any)
	if !ok {
		if strs, ok := list.([]string); ok {
			for _, s := range strs {
				if valuesEqual(val, s) {
					return true
				}
			}
		}
		return false
	}
	for _, item := range items {
		if valuesEqual(val, item) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

func sortRows(rows []Row, orders []Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			cmp := compareValues(rows[i][o.Field], rows[j][o.Field])
			if cmp == 0 {
				continue
			}
			if o.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

// compareValues orders two property values: numbers numerically, strings
// lexically, missing values last.
func compareValues(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	fa, aok := asFloat(a)
	fb, bok := asFloat(b)
	if aok && bok {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func paginate(rows []Row, offset, limit int) []Row {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

func cloneProps(props map[string]any) map[string]any {
	if props == nil {
		return make(map[string]any)
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneProps(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
