package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"
)

// ResolveGitHead returns the commit hash a clone of url would produce
// right now. Image identity pins this hash so a pushed commit makes the
// reconcile loop rebuild instead of reusing the stale image.
func ResolveGitHead(ctx context.Context, url string) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{url},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("source: failed to list refs of %s: %w", url, err)
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}

	// HEAD may be advertised as a hash or as a symref to a branch.
	ref, ok := byName[plumbing.HEAD]
	if ok && ref.Type() == plumbing.SymbolicReference {
		ref, ok = byName[ref.Target()]
	}
	if !ok || ref.Type() != plumbing.HashReference {
		return "", fmt.Errorf("source: %s advertises no HEAD", url)
	}
	return ref.Hash().String(), nil
}

// ResolveGitHubCommit resolves a revision (branch, tag, sha, or empty
// for the default branch) to its commit hash through the GitHub API.
func ResolveGitHubCommit(ctx context.Context, owner string, repo string, revision string, token *string) (string, error) {
	if revision == "" {
		revision = "HEAD"
	}
	url := "https://api.github.com/repos/" + owner + "/" + repo + "/commits/" + revision

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Add("Accept", "application/vnd.github.sha")
	if token != nil {
		req.Header.Add("Authorization", "Bearer "+*token)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source: commit lookup for %s/%s@%s returned status %d", owner, repo, revision, res.StatusCode)
	}

	sha, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if len(sha) == 0 {
		return "", errors.New("source: empty commit response")
	}
	return string(sha), nil
}
