package graph

// Op selects a property comparison for a Cond.
type Op string

const (
	// OpEq matches properties equal to the value.
	OpEq Op = "eq"
	// OpContainsFold matches string properties containing the value,
	// case-insensitively.
	OpContainsFold Op = "contains_fold"
	// OpIn matches properties equal to any element of a list value.
	OpIn Op = "in"
	// OpExists matches nodes whose property is present and non-empty.
	OpExists Op = "exists"
)

// Direction orients a relationship pattern relative to the matched node.
type Direction string

const (
	// DirectionOut follows relationships leaving the matched node.
	DirectionOut Direction = "out"
	// DirectionIn follows relationships entering the matched node.
	DirectionIn Direction = "in"
)

// Cond is one property condition; conditions in a list are conjoined.
type Cond struct {
	Field string
	Op    Op
	Value any
}

// TextCond matches nodes where any of the named string fields contains the
// needle, case-insensitively. Used for free-text search.
type TextCond struct {
	Fields []string
	Needle string
}

// RelPattern extends a node match across one relationship hop. Without
// ReturnTarget the pattern acts as an existence filter on the matched node;
// with it, rows carry the target node's properties instead. ReturnRelProps
// merges the relationship's own properties into each row.
type RelPattern struct {
	Type           string
	Direction      Direction
	TargetLabel    string
	TargetWhere    []Cond
	ReturnTarget   bool
	ReturnRelProps bool
}

// Order sorts results by a property. Numeric values compare numerically,
// everything else as strings; missing values sort last.
type Order struct {
	Field string
	Desc  bool
}

// Query is a structured, fully parameterized graph query: match nodes by
// label and conditions, optionally hop one relationship, order and paginate.
// Executors render it without ever splicing values into query text.
type Query struct {
	Label   string
	Where   []Cond
	Text    *TextCond
	Rel     *RelPattern
	OrderBy []Order
	Limit   int
	Offset  int
}

// Eq is shorthand for an equality condition.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}
