package constants

// OutcomeKind names the three disjoint results of a decode.
type OutcomeKind string

const (
	OutcomeImageReady  OutcomeKind = "IMAGE_READY"
	OutcomeIOFailure   OutcomeKind = "IO_FAILURE"
	OutcomeOutOfMemory OutcomeKind = "OUT_OF_MEMORY"
)

var allOutcomeKinds = []OutcomeKind{
	OutcomeImageReady,
	OutcomeIOFailure,
	OutcomeOutOfMemory,
}

// ParseOutcomeKind maps a stored string back onto a known kind.
func ParseOutcomeKind(s string) (OutcomeKind, bool) {
	for _, k := range allOutcomeKinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}
