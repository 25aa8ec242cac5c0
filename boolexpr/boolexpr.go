// Package boolexpr implements boolean formulas in disjunctive normal form
// over small integer variables. Query filters compile to these formulas and
// archetype matching evaluates them against present/absent assignments.
package boolexpr

import (
	"fmt"
	"strings"

	"github.com/veldtlabs/veldt/bitset"
)

// Expr is a boolean expression in disjunctive normal form: an OR of AND
// clauses, e.g. (A ∧ B ∧ ¬C) ∨ (D ∧ ¬E).
type Expr[T bitset.ID] struct {
	clauses []clause[T]
}

// clause is one AND term: every var in vars must be true and every var in
// negated must be false for the clause to hold.
type clause[T bitset.ID] struct {
	vars    bitset.Set[T]
	negated bitset.Set[T]
}

func (c *clause[T]) clone() clause[T] {
	return clause[T]{vars: c.vars.Clone(), negated: c.negated.Clone()}
}

// Zero returns the expression representing false, the identity for Or.
func Zero[T bitset.ID]() *Expr[T] {
	return &Expr[T]{}
}

// One returns the expression representing true, the identity for And.
func One[T bitset.ID]() *Expr[T] {
	return &Expr[T]{clauses: []clause[T]{{}}}
}

// With returns an expression that is true iff variable v is true.
func With[T bitset.ID](v T) *Expr[T] {
	var c clause[T]
	c.vars.Insert(v)
	return &Expr[T]{clauses: []clause[T]{c}}
}

// Without returns an expression that is true iff variable v is false.
func Without[T bitset.ID](v T) *Expr[T] {
	var c clause[T]
	c.negated.Insert(v)
	return &Expr[T]{clauses: []clause[T]{c}}
}

// Eval evaluates the expression. getVar supplies the value of each variable.
// Evaluation short-circuits on the first unmet var within a clause and on the
// first satisfied clause.
func (e *Expr[T]) Eval(getVar func(T) bool) bool {
	for i := range e.clauses {
		c := &e.clauses[i]
		ok := true
		c.vars.Each(func(v T) bool {
			if !getVar(v) {
				ok = false
				return false
			}
			return true
		})
		if !ok {
			continue
		}
		c.negated.Each(func(v T) bool {
			if getVar(v) {
				ok = false
				return false
			}
			return true
		})
		if ok {
			return true
		}
	}
	return false
}

// And returns the conjunction of e and other as a new expression. The clause
// lists are combined pairwise; a clause that both requires and forbids the
// same variable is a contradiction and is dropped.
func (e *Expr[T]) And(other *Expr[T]) *Expr[T] {
	res := make([]clause[T], 0, len(e.clauses)*len(other.clauses))
	for i := range e.clauses {
		for j := range other.clauses {
			nc := e.clauses[i].clone()
			nc.vars.UnionWith(&other.clauses[j].vars)
			nc.negated.UnionWith(&other.clauses[j].negated)
			if nc.vars.IsDisjoint(&nc.negated) {
				res = append(res, nc)
			}
		}
	}
	return &Expr[T]{clauses: res}
}

// Or returns the disjunction of e and other as a new expression. Clause lists
// are concatenated verbatim; no minimization is attempted since filters are
// compiled once over small variable counts.
func (e *Expr[T]) Or(other *Expr[T]) *Expr[T] {
	res := make([]clause[T], 0, len(e.clauses)+len(other.clauses))
	for i := range e.clauses {
		res = append(res, e.clauses[i].clone())
	}
	for i := range other.clauses {
		res = append(res, other.clauses[i].clone())
	}
	return &Expr[T]{clauses: res}
}

// Not returns the negation of e by De Morgan expansion: the negation of an
// OR of ANDs is an AND of ORs, re-expanded back to OR-of-ANDs. Clause count
// can grow combinatorially with variables per clause.
func (e *Expr[T]) Not() *Expr[T] {
	res := One[T]()
	for i := range e.clauses {
		c := &e.clauses[i]
		ors := Zero[T]()
		// Negating (a ∧ b ∧ ¬c) yields (¬a ∨ ¬b ∨ c).
		c.vars.Each(func(v T) bool {
			var nc clause[T]
			nc.negated.Insert(v)
			ors.clauses = append(ors.clauses, nc)
			return true
		})
		c.negated.Each(func(v T) bool {
			var nc clause[T]
			nc.vars.Insert(v)
			ors.clauses = append(ors.clauses, nc)
			return true
		})
		res = res.And(ors)
	}
	return res
}

// Xor returns the exclusive or of e and other:
// (e ∧ ¬other) ∨ (other ∧ ¬e).
func (e *Expr[T]) Xor(other *Expr[T]) *Expr[T] {
	return e.And(other.Not()).Or(other.And(e.Not()))
}

// IsDisjoint reports whether no assignment can satisfy both e and other at
// the same time. The test is conservative: it returns true only when every
// pairing of clauses contains a syntactic contradiction, so it may
// under-report disjointness but never over-reports it.
func (e *Expr[T]) IsDisjoint(other *Expr[T]) bool {
	for i := range e.clauses {
		a := &e.clauses[i]
		for j := range other.clauses {
			b := &other.clauses[j]
			selfContradictory := !a.vars.IsDisjoint(&a.negated) || !b.vars.IsDisjoint(&b.negated)
			crossContradictory := !a.vars.IsDisjoint(&b.negated) || !b.vars.IsDisjoint(&a.negated)
			if !selfContradictory && !crossContradictory {
				return false
			}
		}
	}
	return true
}

// String renders the expression for debugging: ⊥ for false, ⊤ for the empty
// clause, otherwise clauses joined by ∨.
func (e *Expr[T]) String() string {
	if len(e.clauses) == 0 {
		return "⊥"
	}
	var sb strings.Builder
	for i := range e.clauses {
		if i > 0 {
			sb.WriteString(" ∨ ")
		}
		c := &e.clauses[i]
		if c.vars.IsEmpty() && c.negated.IsEmpty() {
			sb.WriteString("⊤")
			continue
		}
		first := true
		c.vars.Each(func(v T) bool {
			if !first {
				sb.WriteString(" ∧ ")
			}
			first = false
			fmt.Fprintf(&sb, "%d", uint32(v))
			return true
		})
		c.negated.Each(func(v T) bool {
			if !first {
				sb.WriteString(" ∧ ")
			}
			first = false
			fmt.Fprintf(&sb, "¬%d", uint32(v))
			return true
		})
	}
	return sb.String()
}
