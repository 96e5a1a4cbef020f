package workitem

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/traceline/graph"
)

// nodeKey is the graph node id of one snapshot: the work item's logical id
// qualified by version.
func nodeKey(id, version string) string {
	return id + "@" + version
}

// snapshotProps flattens a snapshot into graph node properties. Alongside
// the JSON field set it stores the node key under "id", the logical id under
// "work_item_id", numeric version components and unix timestamps for
// ordering, and the is_current marker the store maintains.
func snapshotProps(item *WorkItem, current bool) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	props := make(map[string]any)
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("flatten snapshot: %w", err)
	}
	major, minor, _ := ParseVersion(item.Version)
	props["id"] = nodeKey(item.ID, item.Version)
	props["work_item_id"] = item.ID
	props["version_major"] = major
	props["version_minor"] = minor
	props["created_at_unix"] = item.CreatedAt.UnixMilli()
	props["updated_at_unix"] = item.UpdatedAt.UnixMilli()
	props["is_current"] = current
	return props, nil
}

// itemFromRow rebuilds a snapshot from a normalized graph row.
func itemFromRow(row graph.Row) (*WorkItem, error) {
	clean := make(map[string]any, len(row))
	for k, v := range row {
		clean[k] = v
	}
	if logical, ok := clean["work_item_id"]; ok {
		clean["id"] = logical
	}
	delete(clean, "work_item_id")
	delete(clean, "version_major")
	delete(clean, "version_minor")
	delete(clean, "created_at_unix")
	delete(clean, "updated_at_unix")
	delete(clean, "is_current")

	raw, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode row: %w", err)
	}
	var item WorkItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &item, nil
}

// cloneItem deep-copies a snapshot, detaching its slices.
func cloneItem(item *WorkItem) *WorkItem {
	out := *item
	out.SkillsNeeded = append([]string(nil), item.SkillsNeeded...)
	out.Steps = append([]string(nil), item.Steps...)
	return &out
}

// contentFields is the comparable field map of a snapshot: every persisted
// field except identity and per-version bookkeeping. Used by Compare.
func contentFields(item *WorkItem) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("flatten snapshot: %w", err)
	}
	for _, meta := range []string{
		"id", "version", "created_at", "created_by",
		"updated_at", "updated_by", "change_description",
	} {
		delete(fields, meta)
	}
	return fields, nil
}
