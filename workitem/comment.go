package workitem

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/c360studio/traceline/audit"
	"github.com/c360studio/traceline/graph"
)

const commentMaxLen = 2000

// AddComment attaches discussion to a work item. Comments live outside the
// version chain: they never bump the version or touch signatures.
func (s *Store) AddComment(ctx context.Context, id, text, actor string) (*Comment, error) {
	text = strings.TrimSpace(text)
	verr := &ValidationError{}
	if text == "" {
		verr.add("text", "must not be blank")
	} else if utf8.RuneCountInString(text) > commentMaxLen {
		verr.add("text", fmt.Sprintf("length must not exceed %d characters", commentMaxLen))
	}
	if strings.TrimSpace(actor) == "" {
		verr.add("author", "caller identity required")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	comment := &Comment{
		ID:         uuid.New().String(),
		WorkItemID: id,
		Author:     actor,
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}
	props := map[string]any{
		"id":              comment.ID,
		"work_item_id":    comment.WorkItemID,
		"author":          comment.Author,
		"text":            comment.Text,
		"created_at":      comment.CreatedAt.Format(time.RFC3339Nano),
		"created_at_unix": comment.CreatedAt.UnixMilli(),
	}
	if err := s.exec.CreateNode(ctx, LabelComment, props); err != nil {
		return nil, fmt.Errorf("persist comment: %w", err)
	}
	if err := s.exec.CreateRelationship(ctx, comment.ID, id, RelBelongsTo, nil); err != nil {
		return nil, fmt.Errorf("link comment: %w", err)
	}

	event := audit.NewEvent(actor, "workitem.comment", "workitem", id, map[string]any{
		"comment_id": comment.ID,
	})
	if err := s.audit.Record(ctx, event); err != nil {
		s.logger.Error("audit record failed", "operation", "workitem.comment", "entity_id", id, "error", err)
	}
	return comment, nil
}

// Comments returns a work item's discussion oldest first.
func (s *Store) Comments(ctx context.Context, id string) ([]*Comment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.exec.ExecuteQuery(ctx, graph.Query{
		Label:   LabelComment,
		Where:   []graph.Cond{graph.Eq("work_item_id", id)},
		OrderBy: []graph.Order{{Field: "created_at_unix"}},
	})
	if err != nil {
		return nil, fmt.Errorf("load comments: %w", err)
	}
	comments := make([]*Comment, 0, len(rows))
	for _, row := range rows {
		createdAt, _ := row["created_at"].(string)
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("decode comment timestamp: %w", err)
		}
		comments = append(comments, &Comment{
			ID:         asString(row["id"]),
			WorkItemID: asString(row["work_item_id"]),
			Author:     asString(row["author"]),
			Text:       asString(row["text"]),
			CreatedAt:  ts,
		})
	}
	return comments, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
