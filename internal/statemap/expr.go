package statemap

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"time"

	"github.com/ncruces/go-strftime"
)

const (
	maxExprLen   = 4096
	maxExprDepth = 64
)

// StartDateVar is the name bound to the run's start timestamp.
const StartDateVar = "start_date"

var errNotString = errors.New("expression did not evaluate to a string")

// evaluator interprets a restricted expression language. Only literals, the
// start_date variable and the whitelisted host functions are reachable.
type evaluator struct {
	start time.Time
	funcs map[string]hostFunc
}

type hostFunc func(args []any) (any, error)

func newEvaluator(start time.Time) *evaluator {
	return &evaluator{
		start: start.UTC(),
		funcs: map[string]hostFunc{
			"format_date": formatDate,
			"sub_days":    subDays,
		},
	}
}

// EvalString evaluates src and requires a string result.
func (e *evaluator) EvalString(src string) (string, error) {
	v, err := e.Eval(src)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w (got %s)", errNotString, typeName(v))
	}
	return s, nil
}

// Eval parses and evaluates src.
func (e *evaluator) Eval(src string) (any, error) {
	if len(src) > maxExprLen {
		return nil, fmt.Errorf("expression longer than %d bytes", maxExprLen)
	}
	expr, err := parser.ParseExpr(src)
	if err != nil {
		return nil, fmt.Errorf("parsing expression: %w", err)
	}
	return e.eval(expr, 0)
}

func (e *evaluator) eval(node ast.Expr, depth int) (any, error) {
	if depth > maxExprDepth {
		return nil, fmt.Errorf("expression nested deeper than %d", maxExprDepth)
	}
	depth++

	switch n := node.(type) {
	case *ast.ParenExpr:
		return e.eval(n.X, depth)

	case *ast.BasicLit:
		return literal(n)

	case *ast.Ident:
		switch n.Name {
		case StartDateVar:
			return e.start, nil
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("unknown variable %q", n.Name)

	case *ast.UnaryExpr:
		x, err := e.eval(n.X, depth)
		if err != nil {
			return nil, err
		}
		i, ok := x.(int64)
		if !ok {
			return nil, fmt.Errorf("operator %s not supported on %s", n.Op, typeName(x))
		}
		switch n.Op {
		case token.SUB:
			return -i, nil
		case token.ADD:
			return i, nil
		}
		return nil, fmt.Errorf("unsupported operator %s", n.Op)

	case *ast.BinaryExpr:
		x, err := e.eval(n.X, depth)
		if err != nil {
			return nil, err
		}
		y, err := e.eval(n.Y, depth)
		if err != nil {
			return nil, err
		}
		return binary(n.Op, x, y)

	case *ast.CallExpr:
		return e.call(n, depth)
	}

	return nil, fmt.Errorf("unsupported expression at offset %d", node.Pos())
}

// call dispatches f(a, b) and the method form a.f(b) to a host function.
func (e *evaluator) call(n *ast.CallExpr, depth int) (any, error) {
	if n.Ellipsis.IsValid() {
		return nil, errors.New("variadic calls are not supported")
	}

	var (
		name string
		args []any
	)
	switch fn := n.Fun.(type) {
	case *ast.Ident:
		name = fn.Name
	case *ast.SelectorExpr:
		name = fn.Sel.Name
		recv, err := e.eval(fn.X, depth)
		if err != nil {
			return nil, err
		}
		args = append(args, recv)
	default:
		return nil, errors.New("only named function calls are supported")
	}

	f, ok := e.funcs[name]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", name)
	}
	for _, a := range n.Args {
		v, err := e.eval(a, depth)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	v, err := f(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func literal(n *ast.BasicLit) (any, error) {
	switch n.Kind {
	case token.STRING, token.CHAR:
		s, err := strconv.Unquote(n.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid literal %s", n.Value)
		}
		return s, nil
	case token.INT:
		i, err := strconv.ParseInt(n.Value, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer literal %s", n.Value)
		}
		return i, nil
	}
	return nil, fmt.Errorf("unsupported literal %s", n.Value)
}

func binary(op token.Token, x, y any) (any, error) {
	switch xv := x.(type) {
	case string:
		if op != token.ADD {
			break
		}
		switch yv := y.(type) {
		case string:
			return xv + yv, nil
		case int64:
			return xv + strconv.FormatInt(yv, 10), nil
		}
	case int64:
		switch yv := y.(type) {
		case int64:
			switch op {
			case token.ADD:
				return xv + yv, nil
			case token.SUB:
				return xv - yv, nil
			case token.MUL:
				return xv * yv, nil
			}
		case string:
			if op == token.ADD {
				return strconv.FormatInt(xv, 10) + yv, nil
			}
		}
	}
	return nil, fmt.Errorf("operator %s not supported on %s and %s", op, typeName(x), typeName(y))
}

func formatDate(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("want 2 arguments, got %d", len(args))
	}
	t, ok := args[0].(time.Time)
	if !ok {
		return nil, fmt.Errorf("argument 1 must be a timestamp, got %s", typeName(args[0]))
	}
	layout, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("argument 2 must be a string, got %s", typeName(args[1]))
	}
	return strftime.Format(layout, t), nil
}

func subDays(args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("want 2 arguments, got %d", len(args))
	}
	t, ok := args[0].(time.Time)
	if !ok {
		return nil, fmt.Errorf("argument 1 must be a timestamp, got %s", typeName(args[0]))
	}
	days, ok := args[1].(int64)
	if !ok {
		return nil, fmt.Errorf("argument 2 must be an integer, got %s", typeName(args[1]))
	}
	return t.AddDate(0, 0, -int(days)), nil
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int64:
		return "integer"
	case bool:
		return "bool"
	case time.Time:
		return "timestamp"
	case nil:
		return "nothing"
	}
	return fmt.Sprintf("%T", v)
}
