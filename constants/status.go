package constants

// SessionState is the canonical lifecycle state of a capture session.
type SessionState string

// Stable values (also written to the outcome journal).
const (
	SessionIdle           SessionState = "IDLE"            // no request, no decode
	SessionAwaitingResult SessionState = "AWAITING_RESULT" // external flow outstanding
	SessionAwaitingDecode SessionState = "AWAITING_DECODE" // worker running
	SessionAwaitingBoth   SessionState = "AWAITING_BOTH"   // new request issued while a decode drains
)

// MatchResult is what Session.Match reports back to the caller.
type MatchResult string

const (
	MatchIgnored    MatchResult = "IGNORED"    // id belongs to someone else
	MatchDispatched MatchResult = "DISPATCHED" // decode running in the background
	MatchRejected   MatchResult = "REJECTED"   // external flow reported failure
)
