package gh

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseRepository extracts the owner and repository name from a GitHub remote
// URL. Both HTTPS (https://github.com/owner/repo.git) and scp-style
// (git@github.com:owner/repo.git) remotes are accepted.
func ParseRepository(remoteURL string) (owner, repo string, err error) {
	raw := strings.TrimSpace(remoteURL)
	if raw == "" {
		return "", "", fmt.Errorf("remote url cannot be empty")
	}

	var path string
	if strings.Contains(raw, "://") {
		parsed, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("parse remote url: %w", err)
		}
		if parsed.Host == "" {
			return "", "", fmt.Errorf("remote url %q has no host", remoteURL)
		}
		path = parsed.Path
	} else {
		at := strings.Index(raw, "@")
		colon := strings.Index(raw, ":")
		if at < 0 || colon < at {
			return "", "", fmt.Errorf("remote url %q is not a GitHub repository", remoteURL)
		}
		path = raw[colon+1:]
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("remote url %q does not name owner/repo", remoteURL)
	}
	return parts[0], parts[1], nil
}
