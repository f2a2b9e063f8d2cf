package fragment

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies pipeline failures.
type Kind int

const (
	KindAlignment Kind = iota + 1
	KindSilenceDetection
	KindTransform
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindAlignment:
		return "alignment"
	case KindSilenceDetection:
		return "silence_detection"
	case KindTransform:
		return "transform"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching against an *Error of the same Kind.
var (
	ErrAlignment        = errors.New("alignment failure")
	ErrSilenceDetection = errors.New("silence detection failure")
	ErrTransform        = errors.New("transform failure")
	ErrConfiguration    = errors.New("configuration error")

	errUnknown = errors.New("pipeline failure")
)

func (k Kind) sentinel() error {
	switch k {
	case KindAlignment:
		return ErrAlignment
	case KindSilenceDetection:
		return ErrSilenceDetection
	case KindTransform:
		return ErrTransform
	case KindConfiguration:
		return ErrConfiguration
	}
	return errUnknown
}

// Error is a tagged pipeline failure. Section, Clause and Fragment are -1
// when not applicable; Fragment is the position among the clause's kept
// fragments.
type Error struct {
	Kind     Kind
	Section  int
	Clause   int
	Fragment int
	Err      error
}

// NewError tags err with a kind and location.
func NewError(kind Kind, section, clause, frag int, err error) *Error {
	return &Error{Kind: kind, Section: section, Clause: clause, Fragment: frag, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Section >= 0 {
		fmt.Fprintf(&b, " section=%d", e.Section)
	}
	if e.Clause >= 0 {
		fmt.Fprintf(&b, " clause=%d", e.Clause)
	}
	if e.Fragment >= 0 {
		fmt.Fprintf(&b, " fragment=%d", e.Fragment)
	}
	b.WriteString(": ")
	if e.Err == nil || !errors.Is(e.Err, e.Kind.sentinel()) {
		b.WriteString(e.Kind.sentinel().Error())
		if e.Err != nil {
			b.WriteString(": ")
		}
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
