package incident

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/go-resty/resty/v2"
)

// IssueRequest describes the tracking issue to open for an incident.
type IssueRequest struct {
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels"`
}

// Issue is the created tracking issue.
type Issue struct {
	Number int      `json:"number"`
	URL    string   `json:"url"`
	Labels []string `json:"labels"`
}

// IssueTracker opens tracking issues for incidents.
type IssueTracker interface {
	CreateIssue(ctx context.Context, req IssueRequest) (Issue, error)
}

// SimulatedTracker fabricates issues locally. Issue numbers are derived from
// the title hash and stand in for a real tracker's allocator; a deployment
// that needs real tickets swaps in RestTracker.
type SimulatedTracker struct {
	Repo string // e.g. "contoso/incidents"
}

func (t *SimulatedTracker) CreateIssue(_ context.Context, req IssueRequest) (Issue, error) {
	repo := t.Repo
	if repo == "" {
		repo = "contoso/incidents"
	}

	h := fnv.New32a()
	h.Write([]byte(req.Title))
	number := int(h.Sum32())%10000 + 1000

	return Issue{
		Number: number,
		URL:    fmt.Sprintf("https://github.com/%s/issues/%d", repo, number),
		Labels: req.Labels,
	}, nil
}

// RestTracker creates issues against a GitHub-compatible REST endpoint.
type RestTracker struct {
	client *resty.Client
	repo   string
}

func NewRestTracker(baseURL, repo, token string, timeout time.Duration) *RestTracker {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &RestTracker{client: client, repo: repo}
}

func (t *RestTracker) CreateIssue(ctx context.Context, req IssueRequest) (Issue, error) {
	var created struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&created).
		Post(fmt.Sprintf("/repos/%s/issues", t.repo))
	if err != nil {
		return Issue{}, fmt.Errorf("create issue: %w", err)
	}
	if resp.IsError() {
		return Issue{}, fmt.Errorf("create issue: unexpected status %s", resp.Status())
	}

	return Issue{Number: created.Number, URL: created.HTMLURL, Labels: req.Labels}, nil
}
