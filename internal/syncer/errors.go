package syncer

import (
	"errors"
	"fmt"

	"github.com/theirongolddev/finsync/internal/model"
)

// ErrUnknownKind is returned for a kind with no registered handler.
var ErrUnknownKind = errors.New("syncer: unknown entity kind")

// FetchError reports a failed remote fetch. The cache and cursor for the
// kind were left untouched.
type FetchError struct {
	Kind model.Kind
	Full bool
	Err  error
}

func (e *FetchError) Error() string {
	mode := "incremental"
	if e.Full {
		mode = "full"
	}
	return fmt.Sprintf("%s fetch of %s failed: %v", mode, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
