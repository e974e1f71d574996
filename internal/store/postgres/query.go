package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alanyoungcy/sniperbot/internal/domain"
)

// listSpec describes a newest-first listing over one table.
type listSpec struct {
	from      string // SELECT ... FROM ...
	tsCol     string
	filterCol string // matched against ListOpts.Filter; empty ignores it
	prefix    bool   // match Filter as a prefix instead of exactly
}

var (
	executionList = listSpec{
		from:      "SELECT order_doc, result_doc, created_at FROM executions",
		tsCol:     "created_at",
		filterCol: "token",
	}
	decisionList = listSpec{
		from:      "SELECT doc FROM decisions",
		tsCol:     "created_at",
		filterCol: "opportunity_address",
	}
	auditList = listSpec{
		from:      "SELECT id, event, detail, created_at FROM audit_log",
		tsCol:     "created_at",
		filterCol: "event",
		prefix:    true,
	}
)

// build renders the query and its positional arguments.
func (s listSpec) build(opts domain.ListOpts) (string, []any) {
	var (
		conds []string
		args  []any
	)
	param := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if opts.Filter != "" && s.filterCol != "" {
		if s.prefix {
			conds = append(conds, fmt.Sprintf("%s LIKE %s", s.filterCol, param(escapeLike(opts.Filter)+"%")))
		} else {
			conds = append(conds, fmt.Sprintf("%s = %s", s.filterCol, param(opts.Filter)))
		}
	}
	if opts.Since != nil {
		conds = append(conds, fmt.Sprintf("%s >= %s", s.tsCol, param(*opts.Since)))
	}
	if opts.Until != nil {
		conds = append(conds, fmt.Sprintf("%s <= %s", s.tsCol, param(*opts.Until)))
	}

	var b strings.Builder
	b.WriteString(s.from)
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY %s DESC", s.tsCol)
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + param(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + param(opts.Offset))
	}
	return b.String(), args
}

// escapeLike quotes LIKE wildcards using the default backslash escape.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
