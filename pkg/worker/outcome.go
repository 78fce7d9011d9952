// Package worker implements the listener and requester goroutines: the two
// threads of control the supervisor owns per link to drain inbound bytes
// and outbound queue entries respectively.
package worker

import "github.com/tzrikka/link/pkg/link"

// OutcomeKind classifies what happened to a single send attempt, replacing
// the source's reliance on catching typed exceptions for control flow.
type OutcomeKind int

const (
	// OutcomeSent means the transport accepted the frame.
	OutcomeSent OutcomeKind = iota
	// OutcomeSoftFailure means the transport rejected the frame without
	// losing the link (a protocol-level error: timeout, decode,
	// validation, or authentication).
	OutcomeSoftFailure
	// OutcomeDisconnected means the link itself is no longer usable.
	OutcomeDisconnected
)

// Outcome is the sum-type result of a single transport Send call.
type Outcome struct {
	Kind OutcomeKind
	Err  error // set for OutcomeSoftFailure and OutcomeDisconnected
}

// classifySend turns a transport's (bool, error) return into an [Outcome],
// using the error's [link.ErrorKind] when classified, and treating an
// unclassified non-nil error as a disconnection (the same default the
// error-handling design applies to transport-internal failures).
func classifySend(ok bool, err error) Outcome {
	if err == nil {
		if ok {
			return Outcome{Kind: OutcomeSent}
		}
		return Outcome{Kind: OutcomeSoftFailure}
	}

	kind, classified := link.KindOf(err)
	if !classified {
		return Outcome{Kind: OutcomeDisconnected, Err: err}
	}

	switch kind {
	case link.KindConnection:
		return Outcome{Kind: OutcomeDisconnected, Err: err}
	default:
		return Outcome{Kind: OutcomeSoftFailure, Err: err}
	}
}
