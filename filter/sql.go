package filter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Dialect selects placeholder style and operator spelling for SQLCompiler.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectPostgres:
		return "postgres"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// SQLiteTimeLayout is the text layout dates are written in by SQLite record
// stores. Comparisons go through julianday(), so rows written by other tools
// in any SQLite time-string format (RFC 3339 with an offset, no fractional
// seconds) compare by instant at millisecond precision. A date julianday()
// cannot read counts as undated.
const SQLiteTimeLayout = "2006-01-02 15:04:05.000000"

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidIdentifier reports whether name can be used unquoted as a table name.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// SQLCompiler compiles an Expr to a parameterized SQL query.
//
// Values are NEVER interpolated into the statement; every comparison value is
// returned as a bound parameter. Column names come from the closed Field set
// and the table name is checked against an identifier pattern.
type SQLCompiler struct {
	Dialect Dialect
	Table   string
}

// NewSQLCompiler creates a compiler for the given dialect and table.
func NewSQLCompiler(dialect Dialect, table string) *SQLCompiler {
	return &SQLCompiler{Dialect: dialect, Table: table}
}

// CompileSelect returns a statement selecting the id column of every record
// matching e, ordered by id with a byte-wise collation so every backend
// returns the same order.
func (c *SQLCompiler) CompileSelect(e Expr) (string, []any, error) {
	if !identifierPattern.MatchString(c.Table) {
		return "", nil, fmt.Errorf("invalid table name %q", c.Table)
	}
	where, params, err := c.CompileWhere(e)
	if err != nil {
		return "", nil, err
	}
	sql := fmt.Sprintf("SELECT id FROM %s WHERE %s ORDER BY %s", c.Table, where, c.orderKey())
	return sql, params, nil
}

// CompileWhere returns the WHERE clause fragment for e and its parameters.
func (c *SQLCompiler) CompileWhere(e Expr) (string, []any, error) {
	if err := Validate(e); err != nil {
		return "", nil, err
	}
	b := &sqlBuilder{dialect: c.Dialect}
	sql, err := b.expr(e)
	if err != nil {
		return "", nil, err
	}
	return sql, b.params, nil
}

func (c *SQLCompiler) orderKey() string {
	if c.Dialect == DialectPostgres {
		return `id COLLATE "C" ASC`
	}
	return "id COLLATE BINARY ASC"
}

// Placeholders returns n comma-separated placeholders starting at position
// start (1-based, only meaningful for Postgres).
func (d Dialect) Placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

func (d Dialect) placeholder(pos int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(pos)
	}
	return "?"
}

type sqlBuilder struct {
	dialect Dialect
	params  []any
}

func (b *sqlBuilder) bind(v any) string {
	b.params = append(b.params, v)
	return b.dialect.placeholder(len(b.params))
}

func (b *sqlBuilder) expr(e Expr) (string, error) {
	switch x := e.(type) {
	case Cond:
		return b.cond(x)
	case *Cond:
		return b.cond(*x)
	case And:
		return b.join(" AND ", x.Exprs)
	case *And:
		return b.join(" AND ", x.Exprs)
	case Or:
		return b.join(" OR ", x.Exprs)
	case *Or:
		return b.join(" OR ", x.Exprs)
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (b *sqlBuilder) join(sep string, exprs []Expr) (string, error) {
	parts := make([]string, 0, len(exprs))
	for _, child := range exprs {
		sql, err := b.expr(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *sqlBuilder) cond(c Cond) (string, error) {
	like := "LIKE"
	if b.dialect == DialectPostgres {
		like = "ILIKE"
	}
	// NULL text columns compare as empty strings so that negated ops match them.
	column := fmt.Sprintf("COALESCE(%s, '')", c.Field)

	switch c.Op {
	case OpContains:
		return fmt.Sprintf(`%s %s %s ESCAPE '\'`, column, like, b.bind(likePattern(c.Value))), nil
	case OpNotContains:
		return fmt.Sprintf(`%s NOT %s %s ESCAPE '\'`, column, like, b.bind(likePattern(c.Value))), nil
	case OpEquals:
		return fmt.Sprintf("%s = %s", column, b.bind(c.Value)), nil
	case OpNotEquals:
		return fmt.Sprintf("%s <> %s", column, b.bind(c.Value)), nil
	case OpBefore:
		// Undated rows are older than any cutoff.
		if b.dialect == DialectSQLite {
			return fmt.Sprintf("(julianday(%[1]s) IS NULL OR julianday(%[1]s) < julianday(%[2]s))", c.Field, b.bind(b.timeParam(c.Time))), nil
		}
		return fmt.Sprintf("(%[1]s IS NULL OR %[1]s < %[2]s)", c.Field, b.bind(b.timeParam(c.Time))), nil
	case OpAfter:
		if b.dialect == DialectSQLite {
			return fmt.Sprintf("julianday(%s) > julianday(%s)", c.Field, b.bind(b.timeParam(c.Time))), nil
		}
		return fmt.Sprintf("%s > %s", c.Field, b.bind(b.timeParam(c.Time))), nil
	default:
		return "", fmt.Errorf("unknown op %s", c.Op)
	}
}

func (b *sqlBuilder) timeParam(t time.Time) any {
	if b.dialect == DialectSQLite {
		return t.UTC().Format(SQLiteTimeLayout)
	}
	return t.UTC()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring LIKE pattern with wildcards in v escaped.
func likePattern(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}
