package gateway

import "strings"

// Decision is the outcome of webhook classification. A rejected delivery is
// not an error: the caller answers 200 with the reason so the sender does not
// retry.
type Decision struct {
	Accept bool
	Reason string
}

func accept() Decision { return Decision{Accept: true} }

func ignore(reason string) Decision { return Decision{Reason: reason} }

// Classify filters a webhook delivery down to the pushes that can open an
// incident: push events, default-branch refs, non-empty commit lists, and a
// source that is registered.
func Classify(eventType, ref, repoID string, commits int, registered bool) Decision {
	if eventType != "push" {
		return ignore("event type: " + eventType)
	}
	if repoID == "" {
		return ignore("missing repository name")
	}
	if !registered {
		return ignore("source not connected")
	}
	if !isDefaultBranch(ref) {
		return ignore("non-default branch: " + ref)
	}
	if commits == 0 {
		return ignore("no commits")
	}
	return accept()
}

func isDefaultBranch(ref string) bool {
	return strings.HasSuffix(ref, "/main") || strings.HasSuffix(ref, "/master")
}
