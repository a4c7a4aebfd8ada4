package filter

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"golang.org/x/text/cases"
)

// celCostLimit bounds evaluation cost of a single compiled expression.
const celCostLimit = 1000000

// CELCompiler compiles an Expr to a CEL program for in-memory evaluation.
//
// Comparison values are bound as CEL variables (p0, p1, ...) rather than
// spliced into the source, so two expressions with the same shape share one
// compiled program. Programs are cached by source and the cache is safe for
// concurrent use.
type CELCompiler struct {
	env      *cel.Env
	programs map[string]cel.Program // source -> compiled program
	mu       sync.RWMutex
}

// CELProgram is a compiled Expr together with its bound parameters.
type CELProgram struct {
	Source string
	prog   cel.Program
	params map[string]any
}

// NewCELCompiler creates a compiler whose environment declares one variable
// per record field plus the containsFold function.
func NewCELCompiler() (*CELCompiler, error) {
	opts := make([]cel.EnvOption, 0, len(Fields)+1)
	for _, f := range Fields {
		if f == FieldDate {
			opts = append(opts, cel.Variable(string(f), cel.TimestampType))
			continue
		}
		opts = append(opts, cel.Variable(string(f), cel.StringType))
	}
	opts = append(opts, cel.Function("containsFold",
		cel.Overload("containsFold_string_string",
			[]*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
			cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
				s, ok := lhs.(types.String)
				if !ok {
					return types.MaybeNoSuchOverloadErr(lhs)
				}
				sub, ok := rhs.(types.String)
				if !ok {
					return types.MaybeNoSuchOverloadErr(rhs)
				}
				return types.Bool(ContainsFold(string(s), string(sub)))
			}),
		),
	))

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CELCompiler{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// ContainsFold reports whether sub occurs in s under Unicode case folding.
func ContainsFold(s, sub string) bool {
	fold := cases.Fold()
	return strings.Contains(fold.String(s), fold.String(sub))
}

// Compile translates e into a CEL program.
func (c *CELCompiler) Compile(e Expr) (*CELProgram, error) {
	if err := Validate(e); err != nil {
		return nil, err
	}
	b := &celBuilder{params: make(map[string]any)}
	source, err := b.expr(e)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	prog, ok := c.programs[source]
	c.mu.RUnlock()
	if !ok {
		prog, err = c.build(source, b.decls)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.programs[source] = prog
		c.mu.Unlock()
	}

	return &CELProgram{Source: source, prog: prog, params: b.params}, nil
}

func (c *CELCompiler) build(source string, decls []cel.EnvOption) (cel.Program, error) {
	env, err := c.env.Extend(decls...)
	if err != nil {
		return nil, fmt.Errorf("failed to extend CEL environment: %w", err)
	}
	ast, issues := env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prog, err := env.Program(ast, cel.CostLimit(celCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// Match evaluates the program against one record's field values, keyed by
// field name. Non-boolean results are treated as no match.
func (p *CELProgram) Match(vars map[string]any) (bool, error) {
	activation := make(map[string]any, len(vars)+len(p.params))
	for k, v := range vars {
		activation[k] = v
	}
	for k, v := range p.params {
		activation[k] = v
	}
	out, _, err := p.prog.Eval(activation)
	if err != nil {
		return false, err
	}
	matched, ok := out.Value().(bool)
	return ok && matched, nil
}

type celBuilder struct {
	params map[string]any
	decls  []cel.EnvOption
}

func (b *celBuilder) bind(v any, t *cel.Type) string {
	name := "p" + strconv.Itoa(len(b.params))
	b.params[name] = v
	b.decls = append(b.decls, cel.Variable(name, t))
	return name
}

func (b *celBuilder) expr(e Expr) (string, error) {
	switch x := e.(type) {
	case Cond:
		return b.cond(x)
	case *Cond:
		return b.cond(*x)
	case And:
		return b.join(" && ", x.Exprs)
	case *And:
		return b.join(" && ", x.Exprs)
	case Or:
		return b.join(" || ", x.Exprs)
	case *Or:
		return b.join(" || ", x.Exprs)
	default:
		return "", fmt.Errorf("unsupported expression type: %T", e)
	}
}

func (b *celBuilder) join(sep string, exprs []Expr) (string, error) {
	parts := make([]string, 0, len(exprs))
	for _, child := range exprs {
		src, err := b.expr(child)
		if err != nil {
			return "", err
		}
		parts = append(parts, src)
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (b *celBuilder) cond(c Cond) (string, error) {
	field := string(c.Field)
	switch c.Op {
	case OpContains:
		return fmt.Sprintf("containsFold(%s, %s)", field, b.bind(c.Value, cel.StringType)), nil
	case OpNotContains:
		return fmt.Sprintf("!containsFold(%s, %s)", field, b.bind(c.Value, cel.StringType)), nil
	case OpEquals:
		return fmt.Sprintf("%s == %s", field, b.bind(c.Value, cel.StringType)), nil
	case OpNotEquals:
		return fmt.Sprintf("%s != %s", field, b.bind(c.Value, cel.StringType)), nil
	case OpBefore:
		return fmt.Sprintf("%s < %s", field, b.bind(c.Time, cel.TimestampType)), nil
	case OpAfter:
		return fmt.Sprintf("%s > %s", field, b.bind(c.Time, cel.TimestampType)), nil
	default:
		return "", fmt.Errorf("unknown op %s", c.Op)
	}
}
