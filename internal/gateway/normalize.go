package gateway

import (
	"time"

	"github.com/linnemanlabs/quell/internal/incident"
)

// PushEvent is the subset of a GitHub push delivery the gateway reads.
type PushEvent struct {
	Ref        string       `json:"ref"`
	Before     string       `json:"before"`
	After      string       `json:"after"`
	Repository PushRepo     `json:"repository"`
	Pusher     PushIdentity `json:"pusher"`
	HeadCommit *PushCommit  `json:"head_commit"`
	Commits    []PushCommit `json:"commits"`
}

type PushRepo struct {
	FullName string `json:"full_name"`
	HTMLURL  string `json:"html_url"`
}

type PushIdentity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PushCommit struct {
	ID        string       `json:"id"`
	Message   string       `json:"message"`
	Timestamp time.Time    `json:"timestamp"`
	URL       string       `json:"url"`
	Author    PushIdentity `json:"author"`
	Added     []string     `json:"added"`
	Removed   []string     `json:"removed"`
	Modified  []string     `json:"modified"`
}

// Normalize converts a push delivery into the canonical alert payload. The
// alarm-compat fields are filled from the push so the triage prompt reads the
// same shape regardless of where the alert came from.
func Normalize(push *PushEvent) *incident.AlertPayload {
	p := &incident.AlertPayload{
		Source:  incident.SourceGitHub,
		RepoID:  push.Repository.FullName,
		RepoURL: push.Repository.HTMLURL,
		Ref:     push.Ref,
		Before:  push.Before,
		After:   push.After,
		Pusher:  push.Pusher.Name,
	}

	p.Commits = make([]incident.Commit, 0, len(push.Commits))
	for i := range push.Commits {
		p.Commits = append(p.Commits, convertCommit(&push.Commits[i]))
	}
	if push.HeadCommit != nil {
		head := convertCommit(push.HeadCommit)
		p.HeadCommit = &head
	} else if len(p.Commits) > 0 {
		p.HeadCommit = &p.Commits[len(p.Commits)-1]
	}

	p.AlarmName = "push:" + push.Repository.FullName
	if p.HeadCommit != nil {
		p.AlarmDescription = firstLine(p.HeadCommit.Message)
		p.AlarmReason = "deploy of " + p.HeadCommit.ShortSHA + " by " + push.Pusher.Name
	} else {
		p.AlarmReason = "push by " + push.Pusher.Name
	}
	return p
}

func convertCommit(c *PushCommit) incident.Commit {
	return incident.Commit{
		SHA:       c.ID,
		ShortSHA:  shortSHA(c.ID),
		Message:   c.Message,
		Author:    c.Author.Name,
		Email:     c.Author.Email,
		Timestamp: c.Timestamp,
		URL:       c.URL,
		Added:     c.Added,
		Removed:   c.Removed,
		Modified:  c.Modified,
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}
