package vectordb

import (
	"errors"
	"fmt"
)

// ErrUnavailable is matched by every UnavailableError
var ErrUnavailable = errors.New("vector index unavailable")

// UnavailableError is an upsert or query the index could not serve
type UnavailableError struct {
	Engine    EngineType
	Op        string
	Namespace string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("vector index %s: %s %q: %v", e.Engine, e.Op, e.Namespace, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Unavailable wraps err as an UnavailableError, nil stays nil
func Unavailable(engine EngineType, op string, namespace string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Engine: engine, Op: op, Namespace: namespace, Err: err}
}
