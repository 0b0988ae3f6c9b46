package authorization

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/mizutama/torii/internal/entities"
)

// CELEngine evaluates expression-type attribute conditions.
// Expressions see two variables: "resource" (the catalogue attributes) and
// "subject" (the principal's id and roles).
type CELEngine struct {
	env *cel.Env
}

// NewCELEngine creates a new CEL engine with predefined declarations
func NewCELEngine() (*CELEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &CELEngine{
		env: env,
	}, nil
}

// Evaluate evaluates a CEL expression against the given context
func (e *CELEngine) Evaluate(expression string, evalCtx *entities.EvaluationContext) (bool, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return false, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return false, fmt.Errorf("failed to create CEL program: %w", err)
	}

	vars := map[string]interface{}{
		"resource": map[string]interface{}{},
		"subject":  map[string]interface{}{},
	}
	if evalCtx != nil {
		vars["resource"] = evalCtx.AttributeMap()
		vars["subject"] = map[string]interface{}{
			"id":    evalCtx.PrincipalID,
			"roles": evalCtx.PrincipalRoles,
		}
	}

	result, _, err := program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not evaluate to boolean, got: %T", result.Value())
	}

	return boolResult, nil
}

// ValidateExpression validates a CEL expression without evaluating it
func (e *CELEngine) ValidateExpression(expression string) error {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("invalid CEL expression: %w", issues.Err())
	}

	// Check that the expression returns a boolean
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("CEL expression must return boolean, got: %s", ast.OutputType())
	}

	return nil
}
