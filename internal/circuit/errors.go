package circuit

import (
	"errors"
	"fmt"
)

// OpenError is returned by Execute when the named circuit is OPEN and no
// fallback was supplied. It is the only error that originates from the
// breaker itself; errors from the protected operation or its fallback
// are always passed through unwrapped.
type OpenError struct {
	// Circuit is the name of the circuit that rejected the call.
	Circuit string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit %q is open", e.Circuit)
}

// IsOpen reports whether err indicates a call rejected by an open
// circuit.
func IsOpen(err error) bool {
	var oe *OpenError
	return errors.As(err, &oe)
}
