package arcgis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	httpTimeout = 60 * time.Second
	// tokenLifetime is requested in minutes; the portal caps it server-side.
	tokenLifetime = 120
	// tokenSlack refreshes the token a little before the portal expires it.
	tokenSlack = time.Minute
)

// Client talks to the ArcGIS Online sharing REST API on behalf of a single
// named user. It is not safe for concurrent use; the auditor is strictly
// sequential.
type Client struct {
	portalURL string
	username  string
	password  string
	http      *http.Client
	logger    *slog.Logger

	token        string
	tokenExpires time.Time
}

// NewClient creates a Client for the given portal and user. SignIn (or any
// operation, which signs in lazily) must succeed before calls are useful.
func NewClient(portalURL, username, password string, logger *slog.Logger) *Client {
	return &Client{
		portalURL: strings.TrimRight(portalURL, "/"),
		username:  username,
		password:  password,
		http:      &http.Client{Timeout: httpTimeout},
		logger:    logger,
	}
}

// Username returns the account the client authenticates as.
func (c *Client) Username() string { return c.username }

// restURL joins path segments onto the portal's sharing REST root.
func (c *Client) restURL(parts ...string) string {
	segs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segs = append(segs, url.PathEscape(p))
		}
	}
	return c.portalURL + "/sharing/rest/" + strings.Join(segs, "/")
}

// SignIn requests a new token for the configured user.
func (c *Client) SignIn(ctx context.Context) error {
	form := url.Values{
		"username":   {c.username},
		"password":   {c.password},
		"referer":    {c.portalURL},
		"expiration": {fmt.Sprint(tokenLifetime)},
		"f":          {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL("generateToken"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tok tokenResponse
	if err := c.send(req, &tok); err != nil {
		return fmt.Errorf("sign in as %q: %w", c.username, err)
	}
	if tok.Token == "" {
		return fmt.Errorf("sign in as %q: empty token in response", c.username)
	}

	c.token = tok.Token
	c.tokenExpires = time.UnixMilli(tok.Expires)
	c.logger.Debug("signed in to portal", "portal", c.portalURL, "user", c.username, "token_expires", c.tokenExpires)
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	if c.token != "" && time.Now().Before(c.tokenExpires.Add(-tokenSlack)) {
		return nil
	}
	return c.SignIn(ctx)
}

// get performs an authenticated GET against a full URL and decodes the JSON
// response into out.
func (c *Client) get(ctx context.Context, rawURL string, query url.Values, out any) error {
	return c.call(ctx, http.MethodGet, rawURL, query, out, false)
}

// post performs an authenticated form POST against a full URL and decodes the
// JSON response into out.
func (c *Client) post(ctx context.Context, rawURL string, form url.Values, out any) error {
	return c.call(ctx, http.MethodPost, rawURL, form, out, false)
}

func (c *Client) call(ctx context.Context, method, rawURL string, params url.Values, out any, retried bool) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("f", "json")
	params.Set("token", c.token)

	var req *http.Request
	var err error
	if method == http.MethodGet {
		req, err = http.NewRequestWithContext(ctx, method, rawURL+"?"+params.Encode(), nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, rawURL, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	err = c.send(req, out)

	// An invalidated token gets one fresh sign-in and retry.
	var restErr *Error
	if !retried && errors.As(err, &restErr) && restErr.Code == invalidTokenCode {
		c.logger.Debug("token rejected, signing in again")
		c.token = ""
		params.Del("token")
		params.Del("f")
		return c.call(ctx, method, rawURL, params, out, true)
	}
	return err
}

// send executes the request and decodes the response, surfacing portal error
// envelopes (which arrive with HTTP 200) as *Error values.
func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("Referer", c.portalURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: unexpected status %s", req.Method, req.URL.Path, resp.Status)
	}

	var envelope struct {
		Error *Error `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// postFile performs an authenticated multipart POST with a single file field.
func (c *Client) postFile(ctx context.Context, rawURL, field, path string, out any) error {
	if err := c.ensureToken(ctx); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("f", "json"); err != nil {
		return err
	}
	if err := writer.WriteField("token", c.token); err != nil {
		return err
	}
	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.send(req, out)
}

// checkSuccess returns an error when a mutation response reports failure
// without an error envelope.
func checkSuccess(op string, resp successResponse) error {
	if !resp.Success {
		return fmt.Errorf("%s: portal reported failure", op)
	}
	return nil
}
