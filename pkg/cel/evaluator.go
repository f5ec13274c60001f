package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// NotificationInput is the view of a mirrored notification exposed to rules.
type NotificationInput struct {
	App      string
	Title    string
	Text     string
	PostedAt time.Time
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("app", cel.StringType),
		cel.Variable("title", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("posted_at", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidateRuleExpression reports whether expression compiles to a bool-valued rule.
func (e *Evaluator) ValidateRuleExpression(expression string) error {
	_, err := e.check(expression)
	return err
}

func (e *Evaluator) check(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("invalid rule expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule expression must return bool, got %v", ast.OutputType())
	}
	return ast, nil
}

// Rule is a compiled notification acceptance expression.
type Rule struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileRule(expression string) (*Rule, error) {
	ast, err := e.check(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Rule{expression: expression, program: program}, nil
}

func (r *Rule) Expression() string {
	return r.expression
}

func (r *Rule) Matches(ctx context.Context, n NotificationInput) (bool, error) {
	vars := map[string]interface{}{
		"app":       n.App,
		"title":     n.Title,
		"text":      n.Text,
		"posted_at": n.PostedAt,
	}

	result, _, err := r.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
