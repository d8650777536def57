package agent

import "errors"

var (
	// ErrRestartRequired is returned when the broker retry budget is spent and
	// the node must restart.
	ErrRestartRequired = errors.New("agent: restart required")

	// ErrMissingDependency is returned by New when a required dependency is nil.
	ErrMissingDependency = errors.New("agent: missing dependency")
)

// ReasonBrokerExhausted is the restart reason after the broker retry budget is spent.
const ReasonBrokerExhausted = "broker_connect_exhausted"
