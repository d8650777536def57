package wifi

import "errors"

var (
	// ErrJoinFailed is returned when the link could not join the network.
	ErrJoinFailed = errors.New("wifi: join failed")

	// ErrStatusUnavailable is returned when the link state cannot be read.
	ErrStatusUnavailable = errors.New("wifi: link status unavailable")

	// ErrUnknownBackend is returned by NewLink for an unsupported backend name.
	ErrUnknownBackend = errors.New("wifi: unknown backend")
)
