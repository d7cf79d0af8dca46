package embedder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ServiceError is a failed call to the remote embedding service
type ServiceError struct {
	Provider Provider
	Model    string
	// Size is the number of texts in the failed request
	Size int
	// StatusCode is the HTTP status of the response, 0 when none was received
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("embedding service %s/%s failed for %d texts (status %d): %v", e.Provider, e.Model, e.Size, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding service %s/%s failed for %d texts: %v", e.Provider, e.Model, e.Size, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the same request may succeed later
func (e *ServiceError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	switch {
	case e.StatusCode == http.StatusTooManyRequests, e.StatusCode >= http.StatusInternalServerError:
		return true
	case e.StatusCode >= http.StatusBadRequest:
		return false
	}
	var netErr net.Error
	if errors.As(e.Err, &netErr) {
		return true
	}
	return e.StatusCode == 0
}

// NewServiceError wraps err unless it already is a ServiceError
func NewServiceError(e Embedder, size int, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return err
	}
	return &ServiceError{
		Provider:   e.Provider(),
		Model:      e.Model(),
		Size:       size,
		StatusCode: statusCode,
		Err:        err,
	}
}
