package source

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/go-github/v56/github"
	"golang.org/x/oauth2"
)

// ErrNotGitHub is returned by Inspect for repositories hosted elsewhere.
var ErrNotGitHub = errors.New("not a github.com repository")

// RepoInfo is the metadata printed during init for GitHub repositories.
type RepoInfo struct {
	FullName      string
	DefaultBranch string
	Private       bool
	HTMLURL       string
}

// GitHubInspector looks up repository metadata through the GitHub API.
type GitHubInspector struct {
	client *github.Client
}

func NewGitHubInspector(token string) *GitHubInspector {
	var client *github.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(context.Background(), ts)
		client = github.NewClient(tc)
	} else {
		client = github.NewClient(nil)
	}

	return &GitHubInspector{client: client}
}

// WithBaseURL points the inspector at a different API endpoint (GitHub
// Enterprise, or a test server).
func (g *GitHubInspector) WithBaseURL(base string) (*GitHubInspector, error) {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	g.client.BaseURL = u
	return g, nil
}

// ParseGitHubURL extracts owner and repository from https and scp-style
// github.com clone URLs.
func ParseGitHubURL(repoURL string) (owner, repo string, ok bool) {
	s := strings.TrimRight(strings.TrimSpace(repoURL), "/")
	switch {
	case strings.HasPrefix(s, "git@github.com:"):
		s = strings.TrimPrefix(s, "git@github.com:")
	default:
		u, err := url.Parse(s)
		if err != nil || !strings.EqualFold(u.Host, "github.com") {
			return "", "", false
		}
		s = strings.TrimPrefix(u.Path, "/")
	}

	parts := strings.Split(strings.TrimSuffix(s, ".git"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Inspect fetches metadata for a github.com repository URL.
func (g *GitHubInspector) Inspect(ctx context.Context, repoURL string) (*RepoInfo, error) {
	owner, name, ok := ParseGitHubURL(repoURL)
	if !ok {
		return nil, ErrNotGitHub
	}

	repo, _, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, err
	}

	return &RepoInfo{
		FullName:      repo.GetFullName(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
		HTMLURL:       repo.GetHTMLURL(),
	}, nil
}
