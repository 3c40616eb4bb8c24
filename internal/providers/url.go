package providers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/archdrift/pkg/models"
)

// Detector classifies URLs by host. Self-hosted instances are added with their host names.
type Detector struct {
	hosts map[string]models.Platform
}

// NewDetector knows github.com and gitlab.com plus the given self-hosted base URLs
func NewDetector() *Detector {
	return &Detector{hosts: map[string]models.Platform{
		"github.com": models.PlatformGitHub,
		"gitlab.com": models.PlatformGitLab,
	}}
}

// AddHost registers the host of baseURL as an instance of p. Empty URLs are ignored.
func (d *Detector) AddHost(p models.Platform, baseURL string) *Detector {
	if baseURL == "" {
		return d
	}
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		d.hosts[strings.ToLower(u.Host)] = p
	}
	return d
}

// Detect returns the platform of a change request or repository URL
func (d *Detector) Detect(rawURL string) (models.Platform, error) {
	u, err := parseWebURL(rawURL)
	if err != nil {
		return "", err
	}
	if p, ok := d.hosts[strings.ToLower(u.Host)]; ok {
		return p, nil
	}
	switch {
	case strings.Contains(u.Path, "/-/merge_requests/"):
		return models.PlatformGitLab, nil
	case strings.Contains(u.Path, "/pull/"):
		return models.PlatformGitHub, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, u.Host)
}

// DetectPlatform classifies rawURL with the public hosts only
func DetectPlatform(rawURL string) (models.Platform, error) {
	return NewDetector().Detect(rawURL)
}

// ParseGitHubPullURL parses https://host/owner/repo/pull/123[/files]
func ParseGitHubPullURL(rawURL string) (models.ChangeRequestRef, error) {
	u, err := parseWebURL(rawURL)
	if err != nil {
		return models.ChangeRequestRef{}, err
	}

	parts := splitPath(u.Path)
	if len(parts) < 4 || parts[2] != "pull" {
		return models.ChangeRequestRef{}, fmt.Errorf("%w: expected /owner/repo/pull/<number>: %s", ErrInvalidURL, rawURL)
	}
	number, err := strconv.Atoi(parts[3])
	if err != nil || number <= 0 {
		return models.ChangeRequestRef{}, fmt.Errorf("%w: bad pull request number %q", ErrInvalidURL, parts[3])
	}

	repoURL := fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, parts[0], parts[1])
	return models.ChangeRequestRef{
		Number:        number,
		URL:           fmt.Sprintf("%s/pull/%d", repoURL, number),
		RepositoryURL: repoURL,
		PlatformID:    models.PlatformID{Owner: parts[0], Repo: parts[1]},
		Platform:      models.PlatformGitHub,
	}, nil
}

// ParseGitLabMergeURL parses https://host/group/sub/project/-/merge_requests/45[/diffs]
func ParseGitLabMergeURL(rawURL string) (models.ChangeRequestRef, error) {
	u, err := parseWebURL(rawURL)
	if err != nil {
		return models.ChangeRequestRef{}, err
	}

	projectPath, rest, found := strings.Cut(strings.Trim(u.Path, "/"), "/-/merge_requests/")
	if !found {
		return models.ChangeRequestRef{}, fmt.Errorf("%w: expected /<project>/-/merge_requests/<iid>: %s", ErrInvalidURL, rawURL)
	}
	segments := splitPath(projectPath)
	if len(segments) < 2 {
		return models.ChangeRequestRef{}, fmt.Errorf("%w: project path %q has no namespace", ErrInvalidURL, projectPath)
	}
	iidText, _, _ := strings.Cut(rest, "/")
	iid, err := strconv.Atoi(iidText)
	if err != nil || iid <= 0 {
		return models.ChangeRequestRef{}, fmt.Errorf("%w: bad merge request iid %q", ErrInvalidURL, iidText)
	}

	repoURL := fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, projectPath)
	return models.ChangeRequestRef{
		Number:        iid,
		URL:           fmt.Sprintf("%s/-/merge_requests/%d", repoURL, iid),
		RepositoryURL: repoURL,
		PlatformID: models.PlatformID{
			Owner: strings.Join(segments[:len(segments)-1], "/"),
			Repo:  segments[len(segments)-1],
		},
		Platform: models.PlatformGitLab,
	}, nil
}

// ParseRepositoryURL parses a repository URL in https or scp-like git form
func (d *Detector) ParseRepositoryURL(rawURL string) (RepoRef, error) {
	normalized := rawURL
	if strings.HasPrefix(rawURL, "git@") {
		hostPath := strings.TrimPrefix(rawURL, "git@")
		host, path, ok := strings.Cut(hostPath, ":")
		if !ok {
			return RepoRef{}, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
		}
		normalized = "https://" + host + "/" + path
	}

	u, err := parseWebURL(normalized)
	if err != nil {
		return RepoRef{}, err
	}
	segments := splitPath(strings.TrimSuffix(u.Path, ".git"))
	if len(segments) < 2 {
		return RepoRef{}, fmt.Errorf("%w: repository path %q has no owner", ErrInvalidURL, u.Path)
	}

	platform, ok := d.hosts[strings.ToLower(u.Host)]
	if !ok {
		return RepoRef{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, u.Host)
	}

	return RepoRef{
		Platform: platform,
		Owner:    strings.Join(segments[:len(segments)-1], "/"),
		Repo:     segments[len(segments)-1],
		URL:      fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, strings.Join(segments, "/")),
	}, nil
}

func parseWebURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidURL, rawURL)
	}
	return u, nil
}

func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
