package githubtarget

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"ContentPipeline/internal/ports"
)

// Target performs branch and file operations against the site
// repository. Every publish attempt works on its own branch, so a
// failed deploy leaves the default branch untouched.
type Target struct {
	client *github.Client
	owner  string
	repo   string
	now    func() time.Time
}

var _ ports.DeployTarget = (*Target)(nil)

// NewTarget builds an authenticated GitHub client.
func NewTarget(ctx context.Context, token, owner, repo string) (*Target, error) {
	if token == "" {
		return nil, fmt.Errorf("github token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	return &Target{
		client: github.NewClient(tc),
		owner:  owner,
		repo:   repo,
		now:    time.Now,
	}, nil
}

// CreateBranch cuts a fresh publish branch off baseRef and returns its
// name.
func (t *Target) CreateBranch(ctx context.Context, baseRef string) (string, error) {
	base, _, err := t.client.Git.GetRef(ctx, t.owner, t.repo, "refs/heads/"+baseRef)
	if err != nil {
		return "", fmt.Errorf("resolve base ref %s: %w", baseRef, err)
	}

	branch := fmt.Sprintf("publish/%d", t.now().UnixNano())
	_, _, err = t.client.Git.CreateRef(ctx, t.owner, t.repo, &github.Reference{
		Ref:    github.String("refs/heads/" + branch),
		Object: &github.GitObject{SHA: base.Object.SHA},
	})
	if err != nil {
		return "", fmt.Errorf("create branch %s: %w", branch, err)
	}
	return branch, nil
}

// PutFile writes one file on the branch and returns the commit SHA.
func (t *Target) PutFile(ctx context.Context, branch, path string, content []byte) (string, error) {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("publish " + path),
		Content: content,
		Branch:  github.String(branch),
	}

	// An existing file needs its blob SHA to be replaced.
	existing, _, _, err := t.client.Repositories.GetContents(ctx, t.owner, t.repo, path,
		&github.RepositoryContentGetOptions{Ref: branch})
	if err == nil && existing != nil {
		opts.SHA = existing.SHA
	}

	resp, _, err := t.client.Repositories.CreateFile(ctx, t.owner, t.repo, path, opts)
	if err != nil {
		return "", fmt.Errorf("put file %s: %w", path, err)
	}
	return resp.Commit.GetSHA(), nil
}

// DeleteRef removes a publish branch during rollback.
func (t *Target) DeleteRef(ctx context.Context, branch string) error {
	if _, err := t.client.Git.DeleteRef(ctx, t.owner, t.repo, "refs/heads/"+branch); err != nil {
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}
