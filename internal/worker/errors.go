package worker

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/docloader/internal/models"
)

// docError is a failure the worker reports back with a reason.
type docError struct {
	reason string
	msg    string
}

func (e *docError) Error() string { return e.msg }

func docErrorf(reason, format string, args ...any) error {
	return &docError{reason: reason, msg: fmt.Sprintf(format, args...)}
}

func frameError(err error) *models.FrameError {
	var de *docError
	if errors.As(err, &de) {
		return &models.FrameError{Reason: de.reason, Message: de.msg}
	}
	return &models.FrameError{Reason: models.ReasonInvalid, Message: err.Error()}
}
