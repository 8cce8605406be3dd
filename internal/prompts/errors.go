package prompts

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound matches every prompt resolution miss.
	ErrNotFound = errors.New("prompt not found")

	// ErrLocalPrompt is returned when a mutation targets a local-file shadow.
	ErrLocalPrompt = errors.New("local-file prompts are read-only")

	// ErrDuplicateName is returned when a prompt name is already taken.
	ErrDuplicateName = errors.New("prompt name already exists")
)

// NotFoundError reports a prompt missing from both the store and local files.
type NotFoundError struct {
	Name string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("prompt not found: %s", e.Name)
	}
	return fmt.Sprintf("prompt not found: id %s", e.ID)
}

// Is makes errors.Is(err, ErrNotFound) true for *NotFoundError.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }
