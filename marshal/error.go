package marshal

import (
	"fmt"
	"strings"

	"github.com/wasmbind/wasmbind/errors"
)

// UnsupportedError aggregates unsupported-kind failures. Entries keep
// signature declaration order so output is deterministic across runs.
//
// Error returns a short summary; String lists every entry. Unwrap
// exposes the entries so errors.Is matching reaches each of them.
type UnsupportedError struct {
	errs []error
}

// Add appends an entry. Nil errors are ignored and nested aggregates
// are flattened so merging per-export results stays one level deep.
func (e *UnsupportedError) Add(err error) {
	if err == nil {
		return
	}
	var nested *UnsupportedError
	if errors.As(err, &nested) {
		e.errs = append(e.errs, nested.errs...)
		return
	}
	e.errs = append(e.errs, err)
}

// Len reports the number of collected entries.
func (e *UnsupportedError) Len() int {
	return len(e.errs)
}

// Err returns nil when nothing was collected, otherwise the aggregate.
func (e *UnsupportedError) Err() error {
	if len(e.errs) == 0 {
		return nil
	}
	return e
}

func (e *UnsupportedError) Error() string {
	switch len(e.errs) {
	case 0:
		return "no unsupported value kinds"
	case 1:
		return e.errs[0].Error()
	}
	return fmt.Sprintf("%d unsupported value kinds, first: %v", len(e.errs), e.errs[0])
}

// String renders all entries, one per line.
func (e *UnsupportedError) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d unsupported value kinds:", len(e.errs)))
	for _, err := range e.errs {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (e *UnsupportedError) Unwrap() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}
