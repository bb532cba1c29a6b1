// internal/predictor/errors.go
package predictor

import "fmt"

// Kind classifies where in the pipeline a prediction failed.
type Kind int

const (
	KindRead Kind = iota + 1
	KindDecode
	KindPreprocess
	KindInference
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindDecode:
		return "decode"
	case KindPreprocess:
		return "preprocess"
	case KindInference:
		return "inference"
	default:
		return "unknown"
	}
}

// Error is the failure half of a prediction. Callers that only need to know
// which stage failed can match with errors.Is against the Err* sentinels.
type Error struct {
	Kind Kind
	Err  error
}

var (
	ErrRead       = &Error{Kind: KindRead}
	ErrDecode     = &Error{Kind: KindDecode}
	ErrPreprocess = &Error{Kind: KindPreprocess}
	ErrInference  = &Error{Kind: KindInference}
)

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s failed", e.Kind)
	}
	return fmt.Sprintf("%s failed: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind whose Err is nil, i.e. the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Err == nil && t.Kind == e.Kind
}

func newError(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}
