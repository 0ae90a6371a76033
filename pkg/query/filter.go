// Package query defines a small backend-neutral filter representation. Domain
// services describe what they want as (field, operator, value) filters and a
// single translation function per backend turns those filters into that
// backend's query language. Repositories depend only on the filter types,
// never the reverse.
package query

import (
	"fmt"
	"strings"
)

// Op is a comparison operator in a filter
type Op string

const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

// Filter is one (field, operator, value) condition. Filters in a slice are
// combined with AND.
type Filter struct {
	Field string
	Op    Op
	Value interface{}
}

// Eq is shorthand for an equality filter
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// ToSQL translates filters into a SQL WHERE fragment with positional
// placeholders starting at startArg, plus the matching argument slice.
// An empty filter slice yields an empty fragment.
func ToSQL(filters []Filter, startArg int) (string, []interface{}, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	conds := make([]string, 0, len(filters))
	args := make([]interface{}, 0, len(filters))

	for i, f := range filters {
		op, ok := sqlOps[f.Op]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter operator: %q", f.Op)
		}
		if !validField(f.Field) {
			return "", nil, fmt.Errorf("invalid filter field: %q", f.Field)
		}
		conds = append(conds, fmt.Sprintf("%s %s $%d", f.Field, op, startArg+i))
		args = append(args, f.Value)
	}

	return strings.Join(conds, " AND "), args, nil
}

// validField restricts filter fields to bare column names so a filter can
// never smuggle SQL into the translated query
func validField(field string) bool {
	if field == "" {
		return false
	}
	for _, r := range field {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}
