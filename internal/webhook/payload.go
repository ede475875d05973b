package webhook

import (
	"errors"

	"github.com/goccy/go-json"
)

var (
	ErrMalformedPayload = errors.New("malformed webhook payload")
	ErrMissingRepoID    = errors.New("payload is missing repository id")
	ErrMissingPR        = errors.New("payload is missing pull request data")
)

// PullRequestEvent is the subset of GitHub's pull_request event this
// pipeline consumes. It is validated once at the boundary; everything
// downstream works with the typed form.
type PullRequestEvent struct {
	Action      string       `json:"action"`
	PullRequest *PullRequest `json:"pull_request"`
	Repository  *Repository  `json:"repository"`
}

type PullRequest struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	HTMLURL  string `json:"html_url"`
	Merged   bool   `json:"merged"`
	MergedAt string `json:"merged_at"`
	User     Author `json:"user"`
}

type Author struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}

type Repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

// ParsePullRequestEvent decodes the raw body into a typed event. It does
// not judge relevance (action/merged), only structural validity.
func ParsePullRequestEvent(body []byte) (*PullRequestEvent, error) {
	var event PullRequestEvent

	err := json.Unmarshal(body, &event)
	if err != nil {
		return nil, ErrMalformedPayload
	}

	return &event, nil
}

// IsMergedPR reports whether the event is a merged pull request close.
// Anything else is acknowledged and dropped.
func (event *PullRequestEvent) IsMergedPR() bool {
	return event.Action == "closed" && event.PullRequest != nil && event.PullRequest.Merged
}
