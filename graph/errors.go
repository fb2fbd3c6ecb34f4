package graph

import (
	"fmt"

	"github.com/metadiff/core/tshape"
	"gopkg.in/src-d/go-errors.v1"
)

// Error kinds per the taxonomy: each raised error carries the offending
// node ids, the operator name, and the involved shapes in a structured
// payload the caller can render, alongside the go-errors.v1 Kind used for
// errors.Is-style matching (the same pattern the teacher's auth package
// uses for ErrNotAuthorized / ErrNoPermission).
var (
	KindImplicitBroadcast    = errors.NewKind("implicit broadcast required")
	KindIncompatibleShapes   = errors.NewKind("incompatible shapes")
	KindInvalidArguments     = errors.NewKind("invalid arguments")
	KindWrongGradient        = errors.NewKind("wrong gradient")
	KindUnsupportedGradient  = errors.NewKind("unsupported gradient")
	KindMissingRequiredInput = errors.NewKind("missing required input")
	KindOtherError           = errors.NewKind("other error")
)

// Detail is the structured payload every IRError carries.
type Detail struct {
	NodeIDs  []NodeID
	Operator string
	Shapes   []tshape.Shape
}

// IRError wraps a go-errors.v1 Kind with the structured Detail payload
// required by the error handling design.
type IRError struct {
	kind   *errors.Kind
	cause  error
	Detail Detail
}

func (e *IRError) Error() string {
	return fmt.Sprintf("%s (operator=%s nodes=%v shapes=%v)", e.cause.Error(), e.Detail.Operator, e.Detail.NodeIDs, e.Detail.Shapes)
}

// Unwrap exposes the underlying go-errors.v1 error so errors.Is/As compose.
func (e *IRError) Unwrap() error { return e.cause }

// Is lets errors.Is(err, graph.KindXxx) work against the wrapped Kind.
func (e *IRError) Is(target error) bool {
	if k, ok := target.(*errors.Kind); ok {
		return e.kind == k
	}
	return e.kind.Is(target)
}

// NewError builds an IRError of the given kind with a formatted message and
// structured detail.
func NewError(kind *errors.Kind, detail Detail, format string, args ...interface{}) *IRError {
	return &IRError{kind: kind, cause: kind.New(fmt.Sprintf(format, args...)), Detail: detail}
}
