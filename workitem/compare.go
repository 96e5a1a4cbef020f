package workitem

import (
	"context"
	"reflect"
	"sort"
)

// Compare diffs two versions of a work item field by field. Identity and
// per-version bookkeeping (version, timestamps, change description) are not
// part of the diff.
func (s *Store) Compare(ctx context.Context, id, versionA, versionB string) (*Comparison, error) {
	a, err := s.GetVersion(ctx, id, versionA)
	if err != nil {
		return nil, err
	}
	b, err := s.GetVersion(ctx, id, versionB)
	if err != nil {
		return nil, err
	}

	fieldsA, err := contentFields(a)
	if err != nil {
		return nil, err
	}
	fieldsB, err := contentFields(b)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{
		WorkItemID:    id,
		VersionA:      versionA,
		VersionB:      versionB,
		ChangedFields: make(map[string]FieldChange),
	}

	names := make(map[string]struct{}, len(fieldsA)+len(fieldsB))
	for name := range fieldsA {
		names[name] = struct{}{}
	}
	for name := range fieldsB {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		va, inA := fieldsA[name]
		vb, inB := fieldsB[name]
		switch {
		case inA && inB:
			if reflect.DeepEqual(va, vb) {
				cmp.UnchangedFields = append(cmp.UnchangedFields, name)
			} else {
				cmp.ChangedFields[name] = FieldChange{From: va, To: vb}
			}
		case inA:
			cmp.RemovedFields = append(cmp.RemovedFields, name)
		default:
			cmp.AddedFields = append(cmp.AddedFields, name)
		}
	}
	return cmp, nil
}
