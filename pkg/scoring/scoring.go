package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/candyvend/pkg/whttp"
	"github.com/tidwall/gjson"
)

var (
	// ErrMissingToken means registration succeeded at the transport level but
	// the response carried no sys_id to correlate later polls with.
	ErrMissingToken = errors.New("scoring service returned no sys_id")
	ErrInvalidEmail = errors.New("invalid email")
)

// Service is the remote scorer as seen by the acquisition loop.
type Service interface {
	Register(ctx context.Context, email string) (string, error)
	FetchScore(ctx context.Context, email string) (raw string, ready bool, err error)
}

// Client talks to the remote scoring service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *retryablehttp.Client
}

func New(baseURL string, client *retryablehttp.Client) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

// ValidateEmail is the minimal shape check done before any request.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// Register submits the email for scoring and returns the correlation token.
func (c *Client) Register(ctx context.Context, email string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return "", err
	}

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: http.MethodPost,
		URL:    c.BaseURL + "/api/score",
		Body:   body,
	}, c.HTTP)
	if err != nil {
		return "", fmt.Errorf("registering %s: %w", email, err)
	}
	if !res.OK() {
		return "", fmt.Errorf("registering %s: %s", email, res.Describe())
	}

	sysID := strings.TrimSpace(gjson.Get(res.BodyString, "result.sys_id").String())
	if sysID == "" {
		return "", ErrMissingToken
	}
	return sysID, nil
}

// FetchScore reads the current score for email. ready is false while the
// score is empty, null or missing. Non-2xx responses are errors.
func (c *Client) FetchScore(ctx context.Context, email string) (string, bool, error) {
	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{
		Method: http.MethodGet,
		URL:    c.BaseURL + "/api/score?email=" + url.QueryEscape(email),
	}, c.HTTP)
	if err != nil {
		return "", false, fmt.Errorf("polling score for %s: %w", email, err)
	}
	if !res.OK() {
		return "", false, fmt.Errorf("polling score for %s: %s", email, res.Describe())
	}

	score := gjson.Get(res.BodyString, "result.score")
	if !score.Exists() || score.Type == gjson.Null {
		return "", false, nil
	}
	raw := strings.TrimSpace(score.String())
	if raw == "" {
		return "", false, nil
	}
	return raw, true, nil
}
