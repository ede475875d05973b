package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/stretchr/testify/require"
)

func newStubClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config.Conf.GithubBaseUrl = server.URL
	config.Conf.GithubRetryMaxAttempts = 1
	config.Conf.GithubRetryMinBackoff = 0
	config.Conf.GithubRetryMaxBackoff = 0

	return NewClient()
}

func TestListMergedPRsFiltersUnmerged(t *testing.T) {
	client := newStubClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/octocat/shiplog/pulls", r.URL.Path)
		require.Equal(t, "closed", r.URL.Query().Get("state"))
		require.Equal(t, "Bearer gh-token", r.Header.Get("Authorization"))

		prs := []map[string]any{
			{"number": 1, "title": "merged", "merged_at": "2026-08-20T10:00:00Z"},
			{"number": 2, "title": "closed unmerged", "merged_at": ""},
			{"number": 3, "title": "also merged", "merged_at": "2026-08-25T10:00:00Z"},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(prs)
	}))

	prs, err := client.ListMergedPRs(context.Background(), "gh-token", "octocat", "shiplog", nil)
	require.NoError(t, err)
	require.Len(t, prs, 2)
	require.Equal(t, 1, prs[0].Number)
	require.Equal(t, 3, prs[1].Number)
}

func TestListMergedPRsHonorsSinceCutoff(t *testing.T) {
	client := newStubClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prs := []map[string]any{
			{"number": 1, "title": "old", "merged_at": "2026-08-01T10:00:00Z"},
			{"number": 2, "title": "new", "merged_at": "2026-08-25T10:00:00Z"},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(prs)
	}))

	since := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)

	prs, err := client.ListMergedPRs(context.Background(), "gh-token", "octocat", "shiplog", &since)
	require.NoError(t, err)
	require.Len(t, prs, 1)
	require.Equal(t, 2, prs[0].Number)
}

func TestListMergedPRsNon200(t *testing.T) {
	client := newStubClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.ListMergedPRs(context.Background(), "gh-token", "octocat", "gone", nil)
	require.ErrorIs(t, err, ErrListPRsRequest)
}

func TestGetPRDiff(t *testing.T) {
	const diff = "diff --git a/main.go b/main.go\n+package main\n"

	client := newStubClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/octocat/shiplog/pulls/42", r.URL.Path)
		require.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))

		_, _ = w.Write([]byte(diff))
	}))

	result, err := client.GetPRDiff(context.Background(), "gh-token", "octocat", "shiplog", 42)
	require.NoError(t, err)
	require.Equal(t, diff, result)
}

func TestGetPRDiffNon200(t *testing.T) {
	client := newStubClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := client.GetPRDiff(context.Background(), "gh-token", "octocat", "shiplog", 42)
	require.ErrorIs(t, err, ErrPRDiffRequest)
}

func TestServerErrorSurfacesAfterRetries(t *testing.T) {
	var hits int

	client := newStubClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := client.ListMergedPRs(context.Background(), "gh-token", "octocat", "shiplog", nil)
	require.ErrorIs(t, err, ErrServerError)
	require.Equal(t, 1, hits)
}
