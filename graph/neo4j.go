package graph

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// identPattern restricts labels, relationship types, and property names to
// plain identifiers. Those come from code-level constants, never from user
// input, but the guard keeps query rendering injection-free by construction.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Neo4j executes against a Neo4j server over Bolt. All caller values travel
// as query parameters.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// Neo4jOption configures the executor.
type Neo4jOption func(*Neo4j)

// WithDatabase selects a database other than the server default.
func WithDatabase(name string) Neo4jOption {
	return func(e *Neo4j) { e.database = name }
}

// WithNeo4jLogger sets the executor's logger.
func WithNeo4jLogger(logger *slog.Logger) Neo4jOption {
	return func(e *Neo4j) { e.logger = logger }
}

// NewNeo4j connects to the given bolt/neo4j URI and verifies connectivity.
func NewNeo4j(ctx context.Context, uri, username, password string, opts ...Neo4jOption) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	e := &Neo4j{driver: driver, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the underlying driver.
func (e *Neo4j) Close(ctx context.Context) error {
	return e.driver.Close(ctx)
}

func (e *Neo4j) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return e.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: e.database,
	})
}

func checkIdent(kind, name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("%w: bad %s %q", ErrInvalidQuery, kind, name)
	}
	return nil
}

func (e *Neo4j) CreateNode(ctx context.Context, label string, props map[string]any) error {
	if err := checkIdent("label", label); err != nil {
		return err
	}
	id, ok := props["id"].(string)
	if !ok || id == "" {
		return ErrMissingID
	}
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		existing, err := tx.Run(ctx, "MATCH (n {id: $id}) RETURN n.id LIMIT 1", map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if existing.Next(ctx) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		res, err := tx.Run(ctx,
			fmt.Sprintf("CREATE (n:%s) SET n = $props", label),
			map[string]any{"props": props})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}

func (e *Neo4j) UpdateNode(ctx context.Context, id string, props map[string]any) error {
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		"MATCH (n {id: $id}) SET n += $props RETURN n.id",
		map[string]any{"id": id, "props": props})
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (e *Neo4j) DeleteNode(ctx context.Context, id string) error {
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		"MATCH (n {id: $id}) DETACH DELETE n",
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	summary, err := result.Consume(ctx)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	if summary.Counters().NodesDeleted() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (e *Neo4j) CreateRelationship(ctx context.Context, fromID, toID, relType string, props map[string]any) error {
	if err := checkIdent("relationship type", relType); err != nil {
		return err
	}
	if props == nil {
		props = map[string]any{}
	}
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf(
		"MATCH (a {id: $from}), (b {id: $to}) MERGE (a)-[r:%s]->(b) SET r += $props RETURN a.id",
		relType)
	result, err := session.Run(ctx, query, map[string]any{"from": fromID, "to": toID, "props": props})
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return fmt.Errorf("create relationship: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s or %s", ErrNotFound, fromID, toID)
	}
	return nil
}

func (e *Neo4j) RemoveRelationships(ctx context.Context, fromID, toID, relType string) error {
	if fromID == "" {
		return fmt.Errorf("%w: from id required", ErrInvalidQuery)
	}
	rel := "[r]"
	if relType != "" {
		if err := checkIdent("relationship type", relType); err != nil {
			return err
		}
		rel = fmt.Sprintf("[r:%s]", relType)
	}
	target := "(b)"
	params := map[string]any{"from": fromID}
	if toID != "" {
		target = "(b {id: $to})"
		params["to"] = toID
	}
	session := e.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (a {id: $from})-%s->%s DELETE r", rel, target)
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("remove relationships: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("remove relationships: %w", err)
	}
	return nil
}

func (e *Neo4j) ExecuteQuery(ctx context.Context, q Query) ([]Row, error) {
	cypher, params, wantRel, err := renderCypher(q)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("graph query", "cypher", cypher)

	session := e.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx, cypher, params)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		values := rec.AsMap()
		row, _ := values["row"].(map[string]any)
		if row == nil {
			row = map[string]any{}
		}
		if wantRel {
			if relProps, ok := values["rel"].(map[string]any); ok {
				for k, v := range relProps {
					row[k] = v
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// renderCypher turns a Query into parameterized Cypher. The returned flag
// reports whether a "rel" column carrying relationship properties is
// selected alongside "row".
func renderCypher(q Query) (string, map[string]any, bool, error) {
	params := make(map[string]any)
	next := 0
	bind := func(v any) string {
		name := fmt.Sprintf("p%d", next)
		next++
		params[name] = v
		return "$" + name
	}

	var sb strings.Builder
	nodePattern := "(n)"
	if q.Label != "" {
		if err := checkIdent("label", q.Label); err != nil {
			return "", nil, false, err
		}
		nodePattern = fmt.Sprintf("(n:%s)", q.Label)
	}

	alias := "n"
	wantRel := false
	if q.Rel != nil {
		if err := checkIdent("relationship type", q.Rel.Type); err != nil {
			return "", nil, false, err
		}
		targetPattern := "(m)"
		if q.Rel.TargetLabel != "" {
			if err := checkIdent("label", q.Rel.TargetLabel); err != nil {
				return "", nil, false, err
			}
			targetPattern = fmt.Sprintf("(m:%s)", q.Rel.TargetLabel)
		}
		if q.Rel.Direction == DirectionIn {
			fmt.Fprintf(&sb, "MATCH %s<-[r:%s]-%s", nodePattern, q.Rel.Type, targetPattern)
		} else {
			fmt.Fprintf(&sb, "MATCH %s-[r:%s]->%s", nodePattern, q.Rel.Type, targetPattern)
		}
		if q.Rel.ReturnTarget {
			alias = "m"
		}
		wantRel = q.Rel.ReturnRelProps
	} else {
		fmt.Fprintf(&sb, "MATCH %s", nodePattern)
	}

	var where []string
	appendConds := func(entity string, conds []Cond) error {
		for _, c := range conds {
			if err := checkIdent("property", c.Field); err != nil {
				return err
			}
			field := entity + "." + c.Field
			switch c.Op {
			case OpEq:
				where = append(where, fmt.Sprintf("%s = %s", field, bind(c.Value)))
			case OpContainsFold:
				where = append(where, fmt.Sprintf("toLower(%s) CONTAINS toLower(%s)", field, bind(c.Value)))
			case OpIn:
				where = append(where, fmt.Sprintf("%s IN %s", field, bind(c.Value)))
			case OpExists:
				where = append(where, fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", field, field))
			default:
				return fmt.Errorf("%w: op %q", ErrInvalidQuery, c.Op)
			}
		}
		return nil
	}
	if err := appendConds("n", q.Where); err != nil {
		return "", nil, false, err
	}
	if q.Rel != nil {
		if err := appendConds("m", q.Rel.TargetWhere); err != nil {
			return "", nil, false, err
		}
	}
	if q.Text != nil && len(q.Text.Fields) > 0 {
		param := bind(q.Text.Needle)
		var ors []string
		for _, f := range q.Text.Fields {
			if err := checkIdent("property", f); err != nil {
				return "", nil, false, err
			}
			ors = append(ors, fmt.Sprintf("toLower(coalesce(n.%s, '')) CONTAINS toLower(%s)", f, param))
		}
		where = append(where, "("+strings.Join(ors, " OR ")+")")
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}

	if q.Rel != nil && !q.Rel.ReturnTarget && !q.Rel.ReturnRelProps {
		fmt.Fprintf(&sb, " RETURN DISTINCT properties(%s) AS row", alias)
	} else if wantRel {
		fmt.Fprintf(&sb, " RETURN properties(%s) AS row, properties(r) AS rel", alias)
	} else {
		fmt.Fprintf(&sb, " RETURN properties(%s) AS row", alias)
	}

	// Order over the returned map so DISTINCT projections stay sortable.
	if len(q.OrderBy) > 0 {
		var orders []string
		for _, o := range q.OrderBy {
			if err := checkIdent("property", o.Field); err != nil {
				return "", nil, false, err
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			orders = append(orders, fmt.Sprintf("row.%s %s", o.Field, dir))
		}
		sb.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}
	if q.Offset > 0 {
		sb.WriteString(" SKIP " + bind(q.Offset))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + bind(q.Limit))
	}
	return sb.String(), params, wantRel, nil
}
