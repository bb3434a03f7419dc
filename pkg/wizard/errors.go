package wizard

import "errors"

// ErrAborted is returned when the user interrupts a prompt or declines to
// submit.
var ErrAborted = errors.New("wizard: aborted")
