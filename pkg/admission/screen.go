// Package admission screens campaign creation requests against CEL
// rules. Rules run after the built-in validations, so a deny only
// stops requests that would otherwise be accepted.
package admission

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// ErrDenied is returned when any rule evaluates to false.
var ErrDenied = errors.New("admission: denied by policy")

// Request is the input exposed to the rules as the "request" variable.
type Request struct {
	Creator      campaign.Principal
	CampaignType campaign.Type
	Asset        string
	TargetAmount int64
	EndTime      time.Time
	MetadataRef  string
	Now          time.Time
}

// Screen evaluates an ordered rule set. Every rule must evaluate to
// true; evaluation errors deny the request.
type Screen struct {
	env   *cel.Env
	rules []string
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewScreen compiles the rules eagerly so a malformed rule fails at
// startup rather than on the first request.
func NewScreen(rules []string) (*Screen, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.DynType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("admission: create environment: %w", err)
	}
	s := &Screen{
		env:   env,
		rules: append([]string(nil), rules...),
		cache: make(map[string]cel.Program),
	}
	for _, rule := range s.rules {
		if _, err := s.program(rule); err != nil {
			return nil, fmt.Errorf("admission: rule %q: %w", rule, err)
		}
	}
	return s, nil
}

// Rules returns the configured rule expressions.
func (s *Screen) Rules() []string {
	return append([]string(nil), s.rules...)
}

// Admit evaluates every rule against the request, fail-closed.
func (s *Screen) Admit(req Request) error {
	input := map[string]any{
		"now": req.Now.Unix(),
		"request": map[string]any{
			"creator":       string(req.Creator),
			"campaign_type": string(req.CampaignType),
			"asset":         req.Asset,
			"target_amount": req.TargetAmount,
			"end_time":      req.EndTime.Unix(),
			"metadata_ref":  req.MetadataRef,
		},
	}
	for i, rule := range s.rules {
		allowed, err := s.evaluate(rule, input)
		if err != nil {
			return fmt.Errorf("%w: rule %d errored: %v", ErrDenied, i, err)
		}
		if !allowed {
			return fmt.Errorf("%w: rule %d", ErrDenied, i)
		}
	}
	return nil
}

func (s *Screen) program(expr string) (cel.Program, error) {
	s.mu.RLock()
	prg, hit := s.cache[expr]
	s.mu.RUnlock()
	if hit {
		return prg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prg, hit = s.cache[expr]; hit {
		return prg, nil
	}
	ast, issues := s.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile: %w", issues.Err())
	}
	prg, err := s.env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program: %w", err)
	}
	s.cache[expr] = prg
	return prg, nil
}

func (s *Screen) evaluate(expr string, input map[string]any) (bool, error) {
	prg, err := s.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
