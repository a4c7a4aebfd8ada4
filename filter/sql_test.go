package filter

import (
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var goldenCutoff = time.Date(2026, 10, 12, 8, 30, 0, 0, time.UTC)

func goldenExpr() Expr {
	return And{Exprs: []Expr{
		Cond{Field: FieldSender, Op: OpEquals, Value: "a@x.com"},
		Or{Exprs: []Expr{
			Cond{Field: FieldSubject, Op: OpContains, Value: "50%_off"},
			Cond{Field: FieldDate, Op: OpBefore, Time: goldenCutoff},
		}},
	}}
}

func TestCompileSelect_Golden(t *testing.T) {
	g := goldie.New(t)

	t.Run("sqlite", func(t *testing.T) {
		sql, params, err := NewSQLCompiler(DialectSQLite, "emails").CompileSelect(goldenExpr())
		require.NoError(t, err)
		g.Assert(t, "select_sqlite", []byte(sql))
		assert.Equal(t, []any{"a@x.com", `%50\%\_off%`, "2026-10-12 08:30:00.000000"}, params)
	})

	t.Run("postgres", func(t *testing.T) {
		sql, params, err := NewSQLCompiler(DialectPostgres, "emails").CompileSelect(goldenExpr())
		require.NoError(t, err)
		g.Assert(t, "select_postgres", []byte(sql))
		assert.Equal(t, []any{"a@x.com", `%50\%\_off%`, goldenCutoff}, params)
	})
}

func TestCompileWhere_Ops(t *testing.T) {
	compiler := NewSQLCompiler(DialectSQLite, "emails")
	after := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))

	testCases := []struct {
		name  string
		cond  Cond
		sql   string
		param any
	}{
		{"contains", Cond{Field: FieldBody, Op: OpContains, Value: "hi"}, `COALESCE(body, '') LIKE ? ESCAPE '\'`, "%hi%"},
		{"not contains", Cond{Field: FieldBody, Op: OpNotContains, Value: "hi"}, `COALESCE(body, '') NOT LIKE ? ESCAPE '\'`, "%hi%"},
		{"equals", Cond{Field: FieldStatus, Op: OpEquals, Value: "UNREAD"}, "COALESCE(status, '') = ?", "UNREAD"},
		{"not equals", Cond{Field: FieldMailbox, Op: OpNotEquals, Value: "INBOX"}, "COALESCE(mailbox, '') <> ?", "INBOX"},
		{"after converts to utc", Cond{Field: FieldDate, Op: OpAfter, Time: after}, "julianday(date) > julianday(?)", "2026-01-02 02:04:05.000000"},
		{"before includes undated", Cond{Field: FieldDate, Op: OpBefore, Time: after}, "(julianday(date) IS NULL OR julianday(date) < julianday(?))", "2026-01-02 02:04:05.000000"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			sql, params, err := compiler.CompileWhere(tc.cond)
			require.NoError(t, err)
			assert.Equal(t, tc.sql, sql)
			assert.Equal(t, []any{tc.param}, params)
		})
	}
}

func TestCompileWhere_PostgresDates(t *testing.T) {
	compiler := NewSQLCompiler(DialectPostgres, "emails")

	sql, params, err := compiler.CompileWhere(Cond{Field: FieldDate, Op: OpBefore, Time: goldenCutoff})
	require.NoError(t, err)
	assert.Equal(t, "(date IS NULL OR date < $1)", sql)
	assert.Equal(t, []any{goldenCutoff}, params)

	sql, _, err = compiler.CompileWhere(Cond{Field: FieldDate, Op: OpAfter, Time: goldenCutoff})
	require.NoError(t, err)
	assert.Equal(t, "date > $1", sql)
}

func TestCompileWhere_NeverInterpolatesValues(t *testing.T) {
	injection := "x' OR '1'='1"
	for _, dialect := range []Dialect{DialectSQLite, DialectPostgres} {
		sql, params, err := NewSQLCompiler(dialect, "emails").CompileSelect(Or{Exprs: []Expr{
			Cond{Field: FieldSubject, Op: OpEquals, Value: injection},
			Cond{Field: FieldSender, Op: OpNotContains, Value: injection},
		}})
		require.NoError(t, err, dialect.String())
		assert.NotContains(t, sql, injection)
		assert.Len(t, params, 2)
	}
}

func TestCompileSelect_PostgresPlaceholdersAreSequential(t *testing.T) {
	sql, params, err := NewSQLCompiler(DialectPostgres, "emails").CompileSelect(And{Exprs: []Expr{
		Cond{Field: FieldSubject, Op: OpEquals, Value: "a"},
		Cond{Field: FieldSender, Op: OpEquals, Value: "b"},
		Cond{Field: FieldBody, Op: OpEquals, Value: "c"},
	}})
	require.NoError(t, err)
	assert.Contains(t, sql, "$1")
	assert.Contains(t, sql, "$2")
	assert.Contains(t, sql, "$3")
	assert.NotContains(t, sql, "?")
	assert.Equal(t, []any{"a", "b", "c"}, params)
}

func TestCompileSelect_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		table string
		expr  Expr
	}{
		{"nil expression", "emails", nil},
		{"empty and", "emails", And{}},
		{"empty or", "emails", Or{Exprs: []Expr{}}},
		{"unknown field", "emails", Cond{Field: "cc", Op: OpEquals, Value: "x"}},
		{"text op on date", "emails", Cond{Field: FieldDate, Op: OpContains, Value: "x"}},
		{"temporal op on subject", "emails", Cond{Field: FieldSubject, Op: OpBefore, Time: goldenCutoff}},
		{"unknown op", "emails", Cond{Field: FieldSubject, Op: Op(99)}},
		{"bad table", "emails; DROP TABLE emails", Cond{Field: FieldSubject, Op: OpEquals, Value: "x"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := NewSQLCompiler(DialectSQLite, tc.table).CompileSelect(tc.expr)
			assert.Error(t, err)
		})
	}
}

func TestDialectPlaceholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", DialectSQLite.Placeholders(1, 3))
	assert.Equal(t, "$4, $5", DialectPostgres.Placeholders(4, 2))
}
