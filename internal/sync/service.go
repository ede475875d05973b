package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/shiplog-app/shiplog/internal/categorize"
	"github.com/shiplog-app/shiplog/internal/config"
	"github.com/shiplog-app/shiplog/internal/entry"
	"github.com/shiplog-app/shiplog/internal/github"
	"github.com/shiplog-app/shiplog/internal/logging"
	"github.com/shiplog-app/shiplog/internal/project"
	"github.com/shiplog-app/shiplog/internal/user"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrInvalidRepoName = errors.New("project full name is not owner/repo")

// Result reports one full sweep. Per-PR failures are collected, never
// fatal: one uncooperative PR must not sink the other ninety-nine.
type Result struct {
	ProjectID uint     `json:"projectId"`
	Synced    int      `json:"synced"`
	Errors    []string `json:"errors"`
}

type Service struct {
	ProjectRepository *project.Repository
	UserRepository    *user.Repository
	EntryRepository   *entry.Repository
	GithubClient      *github.Client
	Categorizer       categorize.Categorizer
}

func NewService(
	projectRepository *project.Repository,
	userRepository *user.Repository,
	entryRepository *entry.Repository,
	githubClient *github.Client,
	categorizer categorize.Categorizer,
) *Service {
	return &Service{
		ProjectRepository: projectRepository,
		UserRepository:    userRepository,
		EntryRepository:   entryRepository,
		GithubClient:      githubClient,
		Categorizer:       categorizer,
	}
}

// SyncProject sweeps merged PRs since the project's last sync and upserts
// a changelog entry per PR. Categorization degrades to the keyword
// fallback here; there is no retry queue behind a manual sweep.
func (service *Service) SyncProject(ctx context.Context, projectID uint) (*Result, error) {
	proj, err := service.ProjectRepository.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}

	usr, err := service.UserRepository.GetByID(ctx, proj.UserID)
	if err != nil {
		return nil, err
	}

	owner, repo, err := splitFullName(proj.FullName)
	if err != nil {
		return nil, err
	}

	prs, err := service.GithubClient.ListMergedPRs(ctx, usr.AccessToken, owner, repo, proj.LastSyncedAt)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("starting project sync",
		zap.Uint("project_id", proj.ID),
		zap.String("repo", proj.FullName),
		zap.Int("merged_prs", len(prs)),
	)

	result := &Result{ProjectID: proj.ID, Errors: []string{}}

	var mu gosync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(config.Conf.SyncConcurrency)

	for idx := range prs {
		pr := prs[idx]

		group.Go(func() error {
			err := service.syncPR(groupCtx, proj, usr.AccessToken, owner, repo, &pr)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("PR #%d: %s", pr.Number, err.Error()))
				return nil
			}

			result.Synced++

			return nil
		})
	}

	_ = group.Wait()

	err = service.ProjectRepository.UpdateLastSynced(ctx, proj.ID)
	if err != nil {
		result.Errors = append(result.Errors, "failed to update sync timestamp: "+err.Error())
	}

	logging.Logger.Info("project sync finished",
		zap.Uint("project_id", proj.ID),
		zap.Int("synced", result.Synced),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (service *Service) syncPR(
	ctx context.Context,
	proj *project.Project,
	token, owner, repo string,
	pr *github.PullRequest,
) error {
	// Diff improves categorization but is never worth failing the PR over.
	diff, err := service.GithubClient.GetPRDiff(ctx, token, owner, repo, pr.Number)
	if err != nil {
		logging.Logger.Debug("PR diff unavailable",
			zap.Int("pr_number", pr.Number),
			zap.String("error", err.Error()),
		)

		diff = ""
	}

	categorization := service.Categorizer.CategorizeWithFallback(ctx, categorize.Input{
		Title: pr.Title,
		Body:  pr.Body,
		Diff:  diff,
	})

	_, err = service.EntryRepository.Upsert(ctx, &entry.ChangelogEntry{
		ProjectID:      proj.ID,
		PRNumber:       pr.Number,
		PRTitle:        pr.Title,
		PRBody:         pr.Body,
		PRUrl:          pr.HTMLURL,
		PRAuthor:       pr.User.Login,
		PRAuthorAvatar: pr.User.AvatarURL,
		PRMergedAt:     pr.MergedAt,
		Category:       categorization.Category,
		Summary:        categorization.Summary,
		Emoji:          categorization.Emoji,
	})

	return err
}

func splitFullName(fullName string) (string, string, error) {
	owner, repo, found := strings.Cut(fullName, "/")
	if !found || owner == "" || repo == "" {
		return "", "", ErrInvalidRepoName
	}

	return owner, repo, nil
}
