package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/creativeprojects/go-selfupdate"
)

var errNoRelease = errors.New("no release published")

// release is a published build the running binary could be replaced with.
type release struct {
	version   string
	notes     string
	url       string
	published time.Time
	size      int
	newer     bool
	install   func(ctx context.Context, exe string) error
}

// releaseSource finds the latest release for the running version.
type releaseSource interface {
	latest(ctx context.Context, current string) (*release, error)
}

type githubSource struct {
	updater *selfupdate.Updater
	repo    selfupdate.Repository
	slug    string
}

func newGitHubSource(slug string, prerelease bool) (*githubSource, error) {
	gh, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	u, err := selfupdate.NewUpdater(selfupdate.Config{Source: gh, Prerelease: prerelease})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}
	return &githubSource{updater: u, repo: selfupdate.ParseSlug(slug), slug: slug}, nil
}

func (g *githubSource) latest(ctx context.Context, current string) (*release, error) {
	rel, found, err := g.updater.DetectLatest(ctx, g.repo)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w for %s", errNoRelease, g.slug)
	}
	return &release{
		version:   rel.Version(),
		notes:     rel.ReleaseNotes,
		url:       rel.URL,
		published: rel.PublishedAt,
		size:      rel.AssetByteSize,
		// dev builds are always behind
		newer: current == "dev" || rel.GreaterThan(current),
		install: func(ctx context.Context, exe string) error {
			return g.updater.UpdateTo(ctx, rel, exe)
		},
	}, nil
}
