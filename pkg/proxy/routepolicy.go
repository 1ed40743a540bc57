package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/milvetnav/navigator-gateway/pkg/domain"
)

// routePolicyQuery is the decision path a route policy module must populate.
const routePolicyQuery = "data.navgate.routing.class"

// RouteInput is the request shape handed to the policy for classification.
type RouteInput struct {
	Method      string `json:"method"`
	Host        string `json:"host"`
	Path        string `json:"path"`
	Destination string `json:"destination"`
	Mode        string `json:"mode"`
}

// RoutePolicy evaluates an operator-supplied Rego module that can override
// the built-in request classification. The module decides per request; an
// undefined result defers to the built-in chain.
type RoutePolicy struct {
	prepared rego.PreparedEvalQuery
	logger   *slog.Logger
}

// NewRoutePolicy compiles the Rego module and prepares its query. Compilation
// errors surface here so a broken policy fails at startup, not per request.
func NewRoutePolicy(ctx context.Context, filename, source string, logger *slog.Logger) (*RoutePolicy, error) {
	if strings.TrimSpace(source) == "" {
		return nil, errors.New("route policy requires a rego module")
	}
	if logger == nil {
		logger = slog.Default()
	}

	prepared, err := rego.New(
		rego.Query(routePolicyQuery),
		rego.Module(filename, source),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile route policy: %w", err)
	}

	return &RoutePolicy{prepared: prepared, logger: logger}, nil
}

// Evaluate returns the policy's class for the request and whether the policy
// produced a usable decision. Evaluation errors and unknown class names are
// logged and reported as no decision.
func (p *RoutePolicy) Evaluate(ctx context.Context, input RouteInput) (domain.RouteClass, bool) {
	results, err := p.prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		p.logger.Warn("route policy evaluation failed", "path", input.Path, "error", err)
		return "", false
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return "", false
	}

	name, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		p.logger.Warn("route policy returned non-string class",
			"path", input.Path, "value", fmt.Sprintf("%T", results[0].Expressions[0].Value))
		return "", false
	}

	class, ok := domain.ParseRouteClass(name)
	if !ok {
		p.logger.Warn("route policy returned unknown class", "class", name, "path", input.Path)
		return "", false
	}
	return class, true
}
