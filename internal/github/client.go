package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/goccy/go-json"
	"github.com/shiplog-app/shiplog/internal/circuitbreak"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrListPRsRequest = errors.New("github list pull requests request failed")
	ErrPRDiffRequest  = errors.New("github pull request diff request failed")
	ErrServerError    = errors.New("github server error")
)

// PullRequest is the slice of GitHub's PR resource the sync sweep needs.
type PullRequest struct {
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	HTMLURL  string `json:"html_url"`
	MergedAt string `json:"merged_at"`
	User     struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"user"`
}

type Client struct {
	HTTPClient     *http.Client
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *Client {
	cbSettings := gobreaker.Settings{
		Name:     "GitHub",
		Interval: time.Duration(config.Conf.GithubIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.GithubConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.GithubService)
			}
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrServerError)
		},
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout: time.Duration(config.Conf.GithubTimeout) * time.Second,
		},
		CircuitBreaker: gobreaker.NewCircuitBreaker[[]byte](cbSettings),
	}
}

// ListMergedPRs returns merged pull requests for a repository, newest
// update first, optionally cut off at a since timestamp.
func (client *Client) ListMergedPRs(
	ctx context.Context,
	token, owner, repo string,
	since *time.Time,
) ([]PullRequest, error) {
	apiUrl, err := url.JoinPath(config.Conf.GithubBaseUrl, "repos", owner, repo, "pulls")
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("state", "closed")
	query.Set("sort", "updated")
	query.Set("direction", "desc")
	query.Set("per_page", strconv.Itoa(config.Conf.SyncPageSize))

	body, statusCode, err := client.doRequestWithRetry(ctx, apiUrl+"?"+query.Encode(), token, "application/vnd.github.v3+json")
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		logging.Logger.Error("github list PRs returned non-200",
			zap.String("repo", owner+"/"+repo),
			zap.Int("status_code", statusCode),
		)

		return nil, ErrListPRsRequest
	}

	var prs []PullRequest

	err = json.Unmarshal(body, &prs)
	if err != nil {
		return nil, err
	}

	return filterMerged(prs, since), nil
}

// GetPRDiff fetches the unified diff for a pull request. Callers treat it
// as best effort.
func (client *Client) GetPRDiff(ctx context.Context, token, owner, repo string, number int) (string, error) {
	apiUrl, err := url.JoinPath(
		config.Conf.GithubBaseUrl,
		"repos", owner, repo, "pulls", strconv.Itoa(number),
	)
	if err != nil {
		return "", err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, apiUrl, token, "application/vnd.github.v3.diff")
	if err != nil {
		return "", err
	}

	if statusCode != http.StatusOK {
		return "", ErrPRDiffRequest
	}

	return string(body), nil
}

func (client *Client) doRequestWithRetry(
	ctx context.Context,
	apiUrl, token, accept string,
) ([]byte, int, error) {
	var statusCode int

	result, err := client.CircuitBreaker.Execute(func() ([]byte, error) {
		var body []byte

		err := retry.Do(
			func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiUrl, nil)
				if err != nil {
					return err
				}

				req.Header.Set("Authorization", "Bearer "+token)
				req.Header.Set("Accept", accept)

				resp, err := client.HTTPClient.Do(req)
				if err != nil {
					logging.Logger.Error("github request failed",
						zap.String("url", apiUrl),
						zap.String("error", err.Error()),
					)

					return err
				}

				defer func() {
					_ = resp.Body.Close()
				}()

				body, err = io.ReadAll(resp.Body)
				if err != nil {
					return err
				}

				statusCode = resp.StatusCode

				if resp.StatusCode >= http.StatusInternalServerError {
					return fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
				}

				return nil
			},
			retry.Attempts(config.Conf.GithubRetryMaxAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(time.Duration(config.Conf.GithubRetryMinBackoff)*time.Second),
			retry.MaxDelay(time.Duration(config.Conf.GithubRetryMaxBackoff)*time.Second),
		)
		if err != nil {
			return nil, err
		}

		return body, nil
	})
	if err != nil {
		return nil, statusCode, err
	}

	return result, statusCode, nil
}

func filterMerged(prs []PullRequest, since *time.Time) []PullRequest {
	merged := make([]PullRequest, 0, len(prs))

	for _, pr := range prs {
		if pr.MergedAt == "" {
			continue
		}

		if since != nil {
			mergedAt, err := time.Parse(time.RFC3339, pr.MergedAt)
			if err != nil || !mergedAt.After(*since) {
				continue
			}
		}

		merged = append(merged, pr)
	}

	return merged
}
