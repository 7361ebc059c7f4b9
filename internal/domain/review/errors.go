package review

import (
	"errors"
	"fmt"

	"github.com/okian/finishline/internal/adapters/repository"
	"github.com/okian/finishline/internal/domain/model"
)

// Error kinds surfaced to callers of the review operations.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// classify wraps a store error with the matching review kind.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, ErrBadRequest):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repository.ErrInvalidState), errors.Is(err, repository.ErrInvalidPage):
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// Kind names the error kind of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}

func authorize(actor model.Actor, min model.Role) error {
	if !actor.Authenticated() {
		return ErrUnauthorized
	}
	if !actor.Can(min) {
		return fmt.Errorf("%w: requires %s role", ErrForbidden, min)
	}
	return nil
}
