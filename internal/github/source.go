// Package github fetches knowledge files from a GitHub repository
// directory, for batch import into the knowledge base.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v81/github"
)

// RemoteFile is one knowledge file fetched from a repository.
type RemoteFile struct {
	Path    string // relative path under the source directory
	Content string
	SHA     string // Git blob SHA
	URL     string // GitHub raw URL
}

// Source reads .md and .txt files from one directory of one repository.
type Source struct {
	client   *github.Client
	owner    string
	repo     string
	basePath string
}

// NewSource creates a GitHub import source. The underlying client waits out
// both primary and secondary rate limits; when GITHUB_TOKEN is set the
// client authenticates for the higher request quota.
func NewSource(owner, repo, basePath string) (*Source, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("github source requires owner and repo")
	}

	rateLimiter, err := github_ratelimit.NewRateLimitWaiterClient(nil)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(rateLimiter)
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		client = client.WithAuthToken(token)
	}

	return &Source{
		client:   client,
		owner:    owner,
		repo:     repo,
		basePath: basePath,
	}, nil
}

// ListFiles recursively lists the .md and .txt files under the source
// directory, as paths relative to it.
func (s *Source) ListFiles(ctx context.Context) ([]string, error) {
	return s.listRecursive(ctx, s.basePath, "")
}

func (s *Source) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var files []string

	_, dirContents, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if isKnowledgeFile(*item.Name) {
				files = append(files, itemRelPath)
			}

		case "dir":
			itemFullPath := path.Join(fullPath, *item.Name)
			subFiles, err := s.listRecursive(ctx, itemFullPath, itemRelPath)
			if err != nil {
				return nil, err
			}
			files = append(files, subFiles...)
		}
	}

	return files, nil
}

// FetchFile fetches the content of one file by its relative path.
func (s *Source) FetchFile(ctx context.Context, relativePath string) (*RemoteFile, error) {
	fullPath := path.Join(s.basePath, relativePath)

	fileContent, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, s.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	rawURL := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main/%s", s.owner, s.repo, fullPath)

	return &RemoteFile{
		Path:    relativePath,
		Content: string(content),
		SHA:     *fileContent.SHA,
		URL:     rawURL,
	}, nil
}

// LatestCommitSHA returns the SHA of the most recent commit touching the
// source directory. Importers record it as the document source revision.
func (s *Source) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := s.client.Repositories.ListCommits(ctx, s.owner, s.repo,
		&github.CommitsListOptions{
			Path: s.basePath,
			ListOptions: github.ListOptions{
				PerPage: 1,
			},
		})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", s.basePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}
	return *commits[0].SHA, nil
}

// isKnowledgeFile reports whether the file name is an importable format.
func isKnowledgeFile(name string) bool {
	return strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".txt")
}
