package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/relgraph"
	"github.com/syssam/relgraph/hook"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("relgraph/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("relgraph/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("relgraph/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// Rule decides whether an operation may run.
type Rule interface {
	Eval(context.Context, *hook.Context) error
}

// RuleFunc type is an adapter which allows the use of ordinary functions as rules.
type RuleFunc func(context.Context, *hook.Context) error

// Eval returns f(ctx, hc).
func (f RuleFunc) Eval(ctx context.Context, hc *hook.Context) error {
	return f(ctx, hc)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() Rule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() Rule {
	return fixedDecision{Deny}
}

// ContextRule creates a rule from a context evaluation function.
// Returning nil is equivalent to returning Skip.
func ContextRule(eval func(context.Context) error) Rule {
	return RuleFunc(func(ctx context.Context, _ *hook.Context) error {
		return eval(ctx)
	})
}

// OnOperation evaluates the given rule only on the given operations.
func OnOperation(rule Rule, op relgraph.Op) Rule {
	return RuleFunc(func(ctx context.Context, hc *hook.Context) error {
		if hc.Event.Op.Is(op) {
			return rule.Eval(ctx, hc)
		}
		return Skip
	})
}

// OnEntity evaluates the given rule only for operations of the given entities.
func OnEntity(rule Rule, entities ...string) Rule {
	return RuleFunc(func(ctx context.Context, hc *hook.Context) error {
		for _, e := range entities {
			if hc.Entity == e {
				return rule.Eval(ctx, hc)
			}
		}
		return Skip
	})
}

// DenyOperationRule returns a rule denying the given operations.
func DenyOperationRule(op relgraph.Op) Rule {
	rule := RuleFunc(func(_ context.Context, hc *hook.Context) error {
		return Denyf("relgraph/privacy: operation %s is not allowed", hc.Name)
	})
	return OnOperation(rule, op)
}

// AllowOperationRule returns a rule allowing the given operations.
func AllowOperationRule(op relgraph.Op) Rule {
	return OnOperation(AlwaysAllowRule(), op)
}

// Policy is an ordered rule chain. The first Allow or Deny decision wins;
// a chain where every rule skips allows the operation.
type Policy []Rule

// Eval evaluates the policy. Allow is reported as nil.
func (p Policy) Eval(ctx context.Context, hc *hook.Context) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, rule := range p {
		switch decision := rule.Eval(ctx, hc); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// Policies holds one policy per entity.
type Policies map[string]Policy

// Eval evaluates the policy of the operation's entity.
func (ps Policies) Eval(ctx context.Context, hc *hook.Context) error {
	return ps[hc.Entity].Eval(ctx, hc)
}

// Handler returns a before-event handler enforcing the rule.
func Handler(rule Rule) hook.Handler {
	return hook.HandlerFunc(func(ctx context.Context, hc *hook.Context) hook.Result {
		if hc.Event.Phase != hook.Before {
			return hook.Ok()
		}
		if err := rule.Eval(ctx, hc); err != nil && !errors.Is(err, Skip) && !errors.Is(err, Allow) {
			return hook.Abort(err)
		}
		return hook.Ok()
	})
}

// Install registers the rule on the registry for the before event of every
// operation. Policy and Policies are rules.
func Install(r *hook.Registry, rule Rule) {
	r.On(hook.Before, relgraph.EntityOps|relgraph.OpGet|relgraph.OpSet|relgraph.OpUnset|
		relgraph.OpIsSet|relgraph.OpIs|relgraph.OpAdd|relgraph.OpRemove|relgraph.OpHas|
		relgraph.OpCount|relgraph.OpSetMany|relgraph.OpGetMany, Handler(rule))
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

var (
	_ Rule = Policy(nil)
	_ Rule = Policies(nil)
)

type fixedDecision struct {
	decision error
}

func (f fixedDecision) Eval(context.Context, *hook.Context) error {
	return f.decision
}
