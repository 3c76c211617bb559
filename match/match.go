// Package match provides action type predicates for binding logic units
// to the actions they intercept.
//
// A predicate is one of a closed set of variants:
//
//	Exact("USER_FETCH")          - literal discriminant comparison
//	Pattern(`^USER_`)            - regular expression match
//	OneOf(p1, p2, ...)           - OR composition of other predicates
//	Any()                        - matches every action
//	Computed(fn)                 - fn() is invoked once at construction
//	                               and its result compared literally
package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/logicflow/action"
)

// Sentinel errors for predicate construction.
var (
	// ErrEmptyType is returned when an exact predicate has no discriminant.
	ErrEmptyType = errors.New("match: empty action type")

	// ErrNilFunc is returned when a computed predicate has no function.
	ErrNilFunc = errors.New("match: nil type function")

	// ErrNoAlternatives is returned when a one-of predicate has no members.
	ErrNoAlternatives = errors.New("match: one-of predicate needs at least one alternative")
)

// Predicate matches an action against a unit's type binding.
// Implementations are immutable and safe for concurrent use.
type Predicate interface {
	// Matches reports whether the action is intercepted by this predicate.
	Matches(a action.Action) bool

	// String returns a stable description used for logging and unit names.
	String() string
}

// exact matches a literal discriminant.
type exact struct {
	typ string
}

func (e exact) Matches(a action.Action) bool { return a.Type == e.typ }
func (e exact) String() string               { return e.typ }

// Exact returns a predicate matching the literal discriminant typ.
// It panics if typ is empty; use NewExact to get an error instead.
func Exact(typ string) Predicate {
	p, err := NewExact(typ)
	if err != nil {
		panic(err)
	}
	return p
}

// NewExact returns a predicate matching the literal discriminant typ.
func NewExact(typ string) (Predicate, error) {
	if typ == "" {
		return nil, ErrEmptyType
	}
	return exact{typ: typ}, nil
}

// pattern matches against a compiled regular expression.
type pattern struct {
	re *regexp.Regexp
}

func (p pattern) Matches(a action.Action) bool { return p.re.MatchString(a.Type) }
func (p pattern) String() string               { return p.re.String() }

// Pattern returns a predicate matching discriminants against expr.
// It panics on an invalid expression; use NewPattern for an error.
func Pattern(expr string) Predicate {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// NewPattern compiles expr and returns a regular-expression predicate.
func NewPattern(expr string) (Predicate, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("match: invalid pattern %q: %w", expr, err)
	}
	return pattern{re: re}, nil
}

// Regexp wraps an already-compiled regular expression as a predicate.
func Regexp(re *regexp.Regexp) (Predicate, error) {
	if re == nil {
		return nil, errors.New("match: nil regexp")
	}
	return pattern{re: re}, nil
}

// oneOf matches when any member predicate matches.
type oneOf struct {
	members []Predicate
}

func (o oneOf) Matches(a action.Action) bool {
	for _, m := range o.members {
		if m.Matches(a) {
			return true
		}
	}
	return false
}

func (o oneOf) String() string {
	parts := make([]string, len(o.members))
	for i, m := range o.members {
		parts[i] = m.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// OneOf returns a predicate matching when any member matches (OR
// semantics). It panics on invalid input; use NewOneOf for an error.
func OneOf(members ...Predicate) Predicate {
	p, err := NewOneOf(members...)
	if err != nil {
		panic(err)
	}
	return p
}

// NewOneOf returns an OR composition of the given predicates.
func NewOneOf(members ...Predicate) (Predicate, error) {
	if len(members) == 0 {
		return nil, ErrNoAlternatives
	}
	for _, m := range members {
		if m == nil {
			return nil, errors.New("match: nil member predicate")
		}
	}
	out := make([]Predicate, len(members))
	copy(out, members)
	return oneOf{members: out}, nil
}

// Types returns an OR predicate over literal discriminants.
func Types(types ...string) (Predicate, error) {
	members := make([]Predicate, 0, len(types))
	for _, t := range types {
		p, err := NewExact(t)
		if err != nil {
			return nil, err
		}
		members = append(members, p)
	}
	return NewOneOf(members...)
}

// any matches every action.
type anyType struct{}

func (anyType) Matches(action.Action) bool { return true }
func (anyType) String() string             { return "*" }

// Any returns the wildcard predicate matching every action.
func Any() Predicate {
	return anyType{}
}

// Computed invokes fn once and matches its result as a literal
// discriminant. This supports action-creator style bindings where the
// creator knows its own type. It panics on invalid input; use
// NewComputed for an error.
func Computed(fn func() string) Predicate {
	p, err := NewComputed(fn)
	if err != nil {
		panic(err)
	}
	return p
}

// NewComputed invokes fn once and returns an exact predicate for its
// result.
func NewComputed(fn func() string) (Predicate, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	return NewExact(fn())
}
