package workitem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/graph"
)

// SignatureGuard is the slice of the signature service the store depends
// on: existence checks before delete and invalidation after every mutation.
type SignatureGuard interface {
	IsSigned(ctx context.Context, workItemID string) (bool, error)
	InvalidateWorkItemSignatures(ctx context.Context, workItemID, reason string) error
}

type nopGuard struct{}

func (nopGuard) IsSigned(context.Context, string) (bool, error) { return false, nil }
func (nopGuard) InvalidateWorkItemSignatures(context.Context, string, string) error {
	return nil
}

// Store is the versioned work-item store. All writes to one work-item id
// are serialized through a per-id lock; there is no global lock.
type Store struct {
	exec   graph.Executor
	guard  SignatureGuard
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time

	locks sync.Map // work-item id -> *sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSignatureGuard wires the signature service in.
func WithSignatureGuard(g SignatureGuard) StoreOption {
	return func(s *Store) { s.guard = g }
}

// WithAuditRecorder wires the audit trail in.
func WithAuditRecorder(r audit.Recorder) StoreOption {
	return func(s *Store) { s.audit = r }
}

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore builds a store over the given graph executor.
func NewStore(exec graph.Executor, opts ...StoreOption) *Store {
	s := &Store{
		exec:   exec,
		guard:  nopGuard{},
		audit:  audit.Nop(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock serializes writers of one work-item id.
func (s *Store) lock(id string) func() {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Create validates the payload, assigns identity and version 1.0, and
// persists the identity node plus the first snapshot.
func (s *Store) Create(ctx context.Context, in CreateInput, actor string) (*WorkItem, error) {
	if strings.TrimSpace(actor) == "" {
		verr := &ValidationError{}
		verr.add("created_by", "caller identity required")
		return nil, verr
	}
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	item := &WorkItem{
		ID:                 uuid.New().String(),
		Type:               in.Type,
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		Status:             in.Status,
		Priority:           in.Priority,
		AssignedTo:         in.AssignedTo,
		ProjectID:          in.ProjectID,
		Source:             in.Source,
		Version:            InitialVersion,
		CreatedBy:          actor,
		CreatedAt:          now,
		UpdatedAt:          now,
		AcceptanceCriteria: in.AcceptanceCriteria,
		EstimatedHours:     in.EstimatedHours,
		StoryPoints:        in.StoryPoints,
		SkillsNeeded:       in.SkillsNeeded,
		Severity:           in.Severity,
		Occurrence:         in.Occurrence,
		Detection:          in.Detection,
		Mitigation:         in.Mitigation,
		Steps:              in.Steps,
		ExpectedResult:     in.ExpectedResult,
		Result:             in.Result,
		ExecutedBy:         in.ExecutedBy,
		DocumentURL:        in.DocumentURL,
		DocumentType:       in.DocumentType,
	}
	computeRPN(item)

	identity := map[string]any{
		"id":              item.ID,
		"type":            string(item.Type),
		"project_id":      item.ProjectID,
		"current_version": item.Version,
		"created_at":      now.Format(time.RFC3339Nano),
	}
	if err := s.exec.CreateNode(ctx, LabelWorkItem, identity); err != nil {
		return nil, fmt.Errorf("persist work item: %w", err)
	}
	props, err := snapshotProps(item, true)
	if err != nil {
		return nil, err
	}
	if err := s.exec.CreateNode(ctx, LabelSnapshot, props); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}

	s.recordAudit(ctx, actor, "workitem.create", item.ID, map[string]any{
		"type":    string(item.Type),
		"version": item.Version,
	})
	s.logger.Info("work item created", "id", item.ID, "type", item.Type, "actor", actor)
	return item, nil
}

// Get returns the current snapshot of a work item.
func (s *Store) Get(ctx context.Context, id string) (*WorkItem, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelSnapshot,
		Where: []graph.Cond{
			graph.Eq("work_item_id", id),
			graph.Eq("is_current", true),
		},
		OrderBy: []graph.Order{
			{Field: "version_major", Desc: true},
			{Field: "version_minor", Desc: true},
		},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load current snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return itemFromRow(rows[0])
}

// GetVersion returns one historical snapshot.
func (s *Store) GetVersion(ctx context.Context, id, version string) (*WorkItem, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelSnapshot,
		Where: []graph.Cond{graph.Eq("id", nodeKey(id, version))},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s version %s", ErrNotFound, id, version)
	}
	return itemFromRow(rows[0])
}

// History returns every snapshot of a work item, newest first by numeric
// (major, minor).
func (s *Store) History(ctx context.Context, id string) ([]*WorkItem, error) {
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label: LabelSnapshot,
		Where: []graph.Cond{graph.Eq("work_item_id", id)},
		OrderBy: []graph.Order{
			{Field: "version_major", Desc: true},
			{Field: "version_minor", Desc: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	items := make([]*WorkItem, 0, len(rows))
	for _, row := range rows {
		item, err := itemFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// Update appends a new snapshot: sparse updates are merged over the current
// one, the version advances, the NEXT_VERSION chain grows by one link, and
// every valid signature on the item is invalidated.
func (s *Store) Update(ctx context.Context, id string, upd Update, actor string) (*WorkItem, error) {
	unlock := s.lock(id)
	defer unlock()
	return s.updateLocked(ctx, id, upd, actor)
}

func (s *Store) updateLocked(ctx context.Context, id string, upd Update, actor string) (*WorkItem, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	next := cloneItem(current)
	changed := upd.apply(next)
	if err := validateUpdate(next, upd); err != nil {
		return nil, err
	}

	next.Version = NextVersion(current.Version)
	next.UpdatedAt = s.now().UTC()
	next.UpdatedBy = actor
	next.ChangeDescription = strings.TrimSpace(upd.ChangeDescription)
	computeRPN(next)

	props, err := snapshotProps(next, true)
	if err != nil {
		return nil, err
	}
	if err := s.exec.CreateNode(ctx, LabelSnapshot, props); err != nil {
		return nil, fmt.Errorf("persist snapshot: %w", err)
	}
	if err := s.exec.CreateRelationship(ctx,
		nodeKey(id, current.Version), nodeKey(id, next.Version), RelNextVersion, nil); err != nil {
		return nil, fmt.Errorf("link version chain: %w", err)
	}
	if err := s.exec.UpdateNode(ctx, nodeKey(id, current.Version), map[string]any{"is_current": false}); err != nil {
		return nil, fmt.Errorf("retire previous snapshot: %w", err)
	}
	if err := s.exec.UpdateNode(ctx, id, map[string]any{
		"current_version": next.Version,
		"updated_at":      next.UpdatedAt.Format(time.RFC3339Nano),
	}); err != nil {
		return nil, fmt.Errorf("advance work item: %w", err)
	}

	if err := s.guard.InvalidateWorkItemSignatures(ctx, id, InvalidationReasonModified); err != nil {
		return nil, fmt.Errorf("invalidate signatures: %w", err)
	}

	s.recordAudit(ctx, actor, "workitem.update", id, map[string]any{
		"version":        next.Version,
		"updated_fields": changed,
	})
	s.logger.Info("work item updated",
		"id", id, "version", next.Version, "fields", len(changed), "actor", actor)
	return next, nil
}

// Delete removes a work item, its snapshots, and its comments. Items with a
// valid signature are refused unless force is set; a forced delete
// invalidates the signatures first so the trail explains the gap.
func (s *Store) Delete(ctx context.Context, id string, force bool, actor string) error {
	unlock := s.lock(id)
	defer unlock()

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	signed, err := s.guard.IsSigned(ctx, id)
	if err != nil {
		return fmt.Errorf("check signatures: %w", err)
	}
	if signed {
		if !force {
			return fmt.Errorf("%w: %s", ErrSigned, id)
		}
		if err := s.guard.InvalidateWorkItemSignatures(ctx, id, "WorkItem deleted"); err != nil {
			return fmt.Errorf("invalidate signatures: %w", err)
		}
	}

	for _, label := range []string{LabelSnapshot, LabelComment} {
		rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
			Label: label,
			Where: []graph.Cond{graph.Eq("work_item_id", id)},
		})
		if err != nil {
			return fmt.Errorf("load %s nodes: %w", label, err)
		}
		for _, row := range rows {
			nodeID, _ := row["id"].(string)
			if nodeID == "" {
				continue
			}
			if err := s.exec.DeleteNode(ctx, nodeID); err != nil {
				return fmt.Errorf("delete %s node: %w", label, err)
			}
		}
	}
	if err := s.exec.DeleteNode(ctx, id); err != nil {
		return fmt.Errorf("delete work item: %w", err)
	}

	s.recordAudit(ctx, actor, "workitem.delete", id, map[string]any{"force": force})
	s.logger.Info("work item deleted", "id", id, "force", force, "actor", actor)
	return nil
}

// Restore writes the target snapshot's content as a new version on top of
// the current one.
func (s *Store) Restore(ctx context.Context, id, targetVersion, actor string) (*WorkItem, error) {
	unlock := s.lock(id)
	defer unlock()

	target, err := s.GetVersion(ctx, id, targetVersion)
	if err != nil {
		return nil, err
	}
	upd := updateFromSnapshot(target)
	upd.ChangeDescription = fmt.Sprintf("Restored to version %s", targetVersion)
	return s.updateLocked(ctx, id, upd, actor)
}

// updateFromSnapshot builds a full-overwrite update from a snapshot's
// content fields.
func updateFromSnapshot(item *WorkItem) Update {
	skills := append([]string(nil), item.SkillsNeeded...)
	steps := append([]string(nil), item.Steps...)
	return Update{
		Title:              &item.Title,
		Description:        &item.Description,
		Status:             &item.Status,
		Priority:           &item.Priority,
		AssignedTo:         &item.AssignedTo,
		ProjectID:          &item.ProjectID,
		Source:             &item.Source,
		AcceptanceCriteria: &item.AcceptanceCriteria,
		EstimatedHours:     &item.EstimatedHours,
		ActualHours:        &item.ActualHours,
		StoryPoints:        &item.StoryPoints,
		SkillsNeeded:       &skills,
		Severity:           &item.Severity,
		Occurrence:         &item.Occurrence,
		Detection:          &item.Detection,
		Mitigation:         &item.Mitigation,
		Steps:              &steps,
		ExpectedResult:     &item.ExpectedResult,
		Result:             &item.Result,
		ExecutedBy:         &item.ExecutedBy,
		DocumentURL:        &item.DocumentURL,
		DocumentType:       &item.DocumentType,
	}
}

func (s *Store) recordAudit(ctx context.Context, actor, operation, entityID string, details map[string]any) {
	event := audit.NewEvent(actor, operation, "workitem", entityID, details)
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("audit record failed", "operation", operation, "entity_id", entityID, "error", err)
	}
}
