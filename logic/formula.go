// Package logic holds the formula tree of probabilistic temporal properties. It has
// no parser: formulas are built from the types below and inspected through Inspect,
// AtomicLabels, AtomicExpressions and IsPropositional.
package logic

import (
	"fmt"
	"strconv"
)

// Formula is a node of a formula tree. Trees are immutable and may share subtrees.
type Formula interface {
	fmt.Stringer
	// Children returns the direct subformulas, left to right.
	Children() []Formula
}

// Direction selects the scheduler an operator quantifies over.
type Direction int

const (
	NoDirection Direction = iota
	Minimize
	Maximize
)

func (d Direction) String() string {
	switch d {
	case Minimize:
		return "min"
	case Maximize:
		return "max"
	default:
		return ""
	}
}

// Comparison is the relation of an operator bound.
type Comparison int

const (
	Less Comparison = iota
	LessEqual
	Greater
	GreaterEqual
)

func (c Comparison) String() string {
	switch c {
	case Less:
		return "<"
	case LessEqual:
		return "<="
	case Greater:
		return ">"
	case GreaterEqual:
		return ">="
	default:
		return fmt.Sprintf("Comparison(%d)", int(c))
	}
}

// IsUpper reports whether the bound limits the value from above.
func (c Comparison) IsUpper() bool {
	return c == Less || c == LessEqual
}

// Bound is the threshold of a P or R operator.
type Bound struct {
	Comparison Comparison
	Threshold  float64
}

func (b Bound) String() string {
	return b.Comparison.String() + strconv.FormatFloat(b.Threshold, 'g', -1, 64)
}

type BooleanLiteral struct {
	Value bool
}

func (f *BooleanLiteral) String() string {
	return strconv.FormatBool(f.Value)
}

func (f *BooleanLiteral) Children() []Formula { return nil }

// AtomicLabel refers to a state label of the model.
type AtomicLabel struct {
	Label string
}

func (f *AtomicLabel) String() string {
	return strconv.Quote(f.Label)
}

func (f *AtomicLabel) Children() []Formula { return nil }

// AtomicExpression is an expression over state variables, kept as text. Models that
// expose expressions as labels name the label after the text.
type AtomicExpression struct {
	Expression string
}

func (f *AtomicExpression) String() string {
	return f.Expression
}

func (f *AtomicExpression) Children() []Formula { return nil }

type Not struct {
	Sub Formula
}

func (f *Not) String() string {
	return "!(" + f.Sub.String() + ")"
}

func (f *Not) Children() []Formula { return []Formula{f.Sub} }

type And struct {
	Left, Right Formula
}

func (f *And) String() string {
	return "(" + f.Left.String() + " & " + f.Right.String() + ")"
}

func (f *And) Children() []Formula { return []Formula{f.Left, f.Right} }

type Or struct {
	Left, Right Formula
}

func (f *Or) String() string {
	return "(" + f.Left.String() + " | " + f.Right.String() + ")"
}

func (f *Or) Children() []Formula { return []Formula{f.Left, f.Right} }

type Next struct {
	Sub Formula
}

func (f *Next) String() string {
	return "X " + f.Sub.String()
}

func (f *Next) Children() []Formula { return []Formula{f.Sub} }

// Until is the path formula Left U Right.
type Until struct {
	Left, Right Formula
}

func (f *Until) String() string {
	return f.Left.String() + " U " + f.Right.String()
}

func (f *Until) Children() []Formula { return []Formula{f.Left, f.Right} }

// BoundedUntil is Left U<=Steps Right.
type BoundedUntil struct {
	Left, Right Formula
	Steps       int
}

func (f *BoundedUntil) String() string {
	return f.Left.String() + " U<=" + strconv.Itoa(f.Steps) + " " + f.Right.String()
}

func (f *BoundedUntil) Children() []Formula { return []Formula{f.Left, f.Right} }

// Eventually is F Sub, shorthand for true U Sub.
type Eventually struct {
	Sub Formula
}

func (f *Eventually) String() string {
	return "F " + f.Sub.String()
}

func (f *Eventually) Children() []Formula { return []Formula{f.Sub} }

type Globally struct {
	Sub Formula
}

func (f *Globally) String() string {
	return "G " + f.Sub.String()
}

func (f *Globally) Children() []Formula { return []Formula{f.Sub} }

// ProbabilityOperator is P with either a bound or a query (Bound nil).
type ProbabilityOperator struct {
	Optimality Direction
	Bound      *Bound
	Sub        Formula
}

func (f *ProbabilityOperator) String() string {
	return "P" + operatorSuffix(f.Optimality, f.Bound) + " [" + f.Sub.String() + "]"
}

func (f *ProbabilityOperator) Children() []Formula { return []Formula{f.Sub} }

// RewardOperator is R over the named reward model, or the unique one if RewardModel
// is empty.
type RewardOperator struct {
	RewardModel string
	Optimality  Direction
	Bound       *Bound
	Sub         Formula
}

func (f *RewardOperator) String() string {
	name := ""
	if f.RewardModel != "" {
		name = "{" + strconv.Quote(f.RewardModel) + "}"
	}
	return "R" + name + operatorSuffix(f.Optimality, f.Bound) + " [" + f.Sub.String() + "]"
}

func (f *RewardOperator) Children() []Formula { return []Formula{f.Sub} }

func operatorSuffix(optimality Direction, bound *Bound) string {
	s := optimality.String()
	if bound != nil {
		return s + bound.String()
	}
	return s + "=?"
}

// Label is shorthand for &AtomicLabel{Label: name}.
func Label(name string) *AtomicLabel {
	return &AtomicLabel{Label: name}
}

// True and False build boolean literals.
func True() *BooleanLiteral  { return &BooleanLiteral{Value: true} }
func False() *BooleanLiteral { return &BooleanLiteral{Value: false} }
