package boards

import "errors"

var (
	ErrBoardNotFound  = errors.New("Board not found")
	ErrMissingTitle   = errors.New("Title is required")
	ErrSlugTaken      = errors.New("Slug is already in use")
	ErrInvalidDelta   = errors.New("Invalid delta payload")
	ErrWrongDocument  = errors.New("Delta addressed to a different document")
	ErrCollabDisabled = errors.New("Collaboration is not enabled for this deployment")
)
