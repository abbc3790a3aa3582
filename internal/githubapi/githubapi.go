// Package githubapi polls commit history for a connected repository. The
// investigation stage falls back to it when an alert payload carries no
// commits of its own (e.g. a polled-metric alarm).
package githubapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/linnemanlabs/quell/internal/incident"
)

// Client fetches recent commits from GitHub.
type Client struct {
	client *gogithub.Client
}

// New creates a Client. An empty token yields an unauthenticated client,
// good enough for public repos and dev mode.
func New(token string) *Client {
	if token == "" {
		return &Client{client: gogithub.NewClient(nil)}
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	return &Client{client: gogithub.NewClient(tc)}
}

// RecentCommits lists commits on the default branch within the lookback
// window, newest first, for a normalized "owner/repo" ID.
func (c *Client) RecentCommits(ctx context.Context, repoID string, lookback time.Duration) ([]incident.Commit, error) {
	owner, name, ok := strings.Cut(repoID, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("malformed repo id %q", repoID)
	}

	ghCommits, _, err := c.client.Repositories.ListCommits(ctx, owner, name, &gogithub.CommitsListOptions{
		Since:       time.Now().Add(-lookback),
		ListOptions: gogithub.ListOptions{PerPage: 30},
	})
	if err != nil {
		return nil, fmt.Errorf("listing commits for %s: %w", repoID, err)
	}

	out := make([]incident.Commit, 0, len(ghCommits))
	for _, gc := range ghCommits {
		c := incident.Commit{
			SHA:      gc.GetSHA(),
			ShortSHA: shortSHA(gc.GetSHA()),
			URL:      gc.GetHTMLURL(),
		}
		if commit := gc.GetCommit(); commit != nil {
			c.Message = commit.GetMessage()
			if author := commit.GetAuthor(); author != nil {
				c.Author = author.GetName()
				c.Email = author.GetEmail()
				c.Timestamp = author.GetDate().Time
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
