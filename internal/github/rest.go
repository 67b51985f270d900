package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	github "github.com/google/go-github/v55/github"
	"golang.org/x/oauth2"
)

const userAgent = "gitwagon"

// NewRESTFactory returns an inspector factory backed by the go-github REST
// client. Setting both URLs targets a GitHub Enterprise server.
func NewRESTFactory(baseURL, uploadURL string) Factory {
	return &restFactory{baseURL: strings.TrimSpace(baseURL), uploadURL: strings.TrimSpace(uploadURL)}
}

type restFactory struct {
	baseURL   string
	uploadURL string
}

func (f *restFactory) New(ctx context.Context, token string) (Inspector, error) {
	client, err := f.client(ctx, token)
	if err != nil {
		return nil, err
	}
	client.UserAgent = userAgent
	return &restInspector{client: client}, nil
}

func (f *restFactory) client(ctx context.Context, token string) (*github.Client, error) {
	// Public repositories can be inspected anonymously.
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}

	switch {
	case f.baseURL == "" && f.uploadURL == "":
		return github.NewClient(hc), nil
	case f.baseURL == "" || f.uploadURL == "":
		return nil, errors.New("github base and upload urls must be set together")
	}

	base, err := normalizeGitHubURL(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("github base url: %w", err)
	}
	upload, err := normalizeGitHubURL(f.uploadURL)
	if err != nil {
		return nil, fmt.Errorf("github upload url: %w", err)
	}
	client, err := github.NewClient(hc).WithEnterpriseURLs(base, upload)
	if err != nil {
		return nil, fmt.Errorf("enterprise github client: %w", err)
	}
	return client, nil
}

// normalizeGitHubURL keeps scheme, host and path of raw, with a trailing slash
// on the path as go-github requires.
func normalizeGitHubURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q is not an absolute url", raw)
	}
	clean := url.URL{Scheme: u.Scheme, User: u.User, Host: u.Host, Path: strings.TrimSuffix(u.Path, "/") + "/"}
	return clean.String(), nil
}

type restInspector struct {
	client *github.Client
}

func (c *restInspector) Branch(ctx context.Context, owner, repo, branch string) (BranchInfo, error) {
	info := BranchInfo{Owner: owner, Repo: repo, Branch: branch}

	repository, resp, err := c.client.Repositories.Get(ctx, owner, repo)
	switch {
	case statusCode(resp, err) == http.StatusNotFound:
		return info, fmt.Errorf("%w: %s/%s", ErrRepositoryNotFound, owner, repo)
	case err != nil:
		return info, fmt.Errorf("get repository %s/%s: %w", owner, repo, classifyGitHubError(err))
	}
	info.DefaultBranch = repository.GetDefaultBranch()

	b, resp, err := c.client.Repositories.GetBranch(ctx, owner, repo, branch, false)
	switch {
	case statusCode(resp, err) == http.StatusNotFound:
		return info, nil
	case err != nil:
		return info, fmt.Errorf("get branch %s: %w", branch, classifyGitHubError(err))
	}

	info.Exists = true
	info.Protected = b.GetProtected()
	info.SHA = b.GetCommit().GetSHA()
	return info, nil
}

// statusCode returns the HTTP status behind a go-github call, or 0 when the
// request never got a response.
func statusCode(resp *github.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode
	}
	return 0
}

// classifyGitHubError marks rate limits, server errors and timeouts as
// retryable.
func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}

	var (
		rateLimit *github.RateLimitError
		abuse     *github.AbuseRateLimitError
		accepted  *github.AcceptedError
		netErr    net.Error
	)
	retry := errors.As(err, &rateLimit) || errors.As(err, &abuse) || errors.As(err, &accepted)
	if code := statusCode(nil, err); code == http.StatusTooManyRequests || code >= 500 {
		retry = true
	}
	if errors.As(err, &netErr) && netErr.Timeout() {
		retry = true
	}

	if !retry {
		return err
	}
	return &retryableError{err: err}
}
