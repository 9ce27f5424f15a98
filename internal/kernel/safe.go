package kernel

import (
	"errors"
	"fmt"
)

// errPanicRecovered marks errors produced from a recovered panic.
var errPanicRecovered = errors.New("panic recovered")

// runSafely calls fn and turns a panic into an error tagged with scope.
// Lifecycle hooks, driver loops, and bus workers all go through it.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%s: %w: %v", scope, errPanicRecovered, recovered)
		}
	}()

	if callErr := fn(); callErr != nil {
		return fmt.Errorf("%s: %w", scope, callErr)
	}

	return nil
}
