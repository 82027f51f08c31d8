// Package registry implements the Registry Client (spec §4.4, C4): fetching
// per-package metadata documents and picking the maximum version that
// satisfies a semver range.
//
// Transport is grounded on the teacher's internal/client.APIClient: a
// retryablehttp.Client wired with bounded retries and an hclog.Logger.
// Version selection uses Masterminds/semver/v3, the library the teacher's
// packagemanager package already depends on for range comparisons.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"github.com/ndpkg/ndpkg/internal/nderrors"
)

// DefaultBaseURL is the registry the spec says to assume absent an override.
const DefaultBaseURL = "https://registry.npmjs.org"

// Document is the per-package listing returned by the registry (spec §3).
type Document struct {
	Versions map[string]Version `json:"versions"`
}

// Version is one published version's metadata.
type Version struct {
	Dist         Dist              `json:"dist"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Dist carries the distribution tarball URL.
type Dist struct {
	Tarball string `json:"tarball"`
}

// Client fetches Documents from a registry over HTTP.
type Client struct {
	BaseURL string
	HTTP    *retryablehttp.Client
}

// New builds a Client configured the way the teacher's APIClient is:
// bounded retries with exponential backoff, logging through hclog.
func New(baseURL string, logger hclog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP: &retryablehttp.Client{
			HTTPClient:   &http.Client{Timeout: 30 * time.Second},
			RetryWaitMin: 250 * time.Millisecond,
			RetryWaitMax: 2 * time.Second,
			RetryMax:     3,
			CheckRetry:   retryablehttp.DefaultRetryPolicy,
			Backoff:      retryablehttp.DefaultBackoff,
			Logger:       logger,
		},
	}
}

// FetchMetadata issues GET {registry_base}/{name}, URL-encoding a scoped
// name's slash as %2f per the registry's convention (spec §4.4).
func (c *Client) FetchMetadata(ctx context.Context, name string) (*Document, error) {
	reqURL := c.BaseURL + "/" + encodeName(name)

	req, err := retryablehttp.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "building metadata request for %s", name)
	}
	req = req.WithContext(ctx)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &nderrors.HttpError{URL: reqURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &nderrors.HttpError{URL: reqURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &nderrors.HttpError{URL: reqURL, Cause: err}
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &nderrors.JsonError{Source: reqURL, Cause: err}
	}
	return &doc, nil
}

// encodeName URL-encodes a scoped package name (@scope/pkg) such that the
// single separating slash becomes %2f, leaving the rest untouched.
func encodeName(name string) string {
	if !strings.HasPrefix(name, "@") {
		return url.PathEscape(name)
	}
	scope, pkg, found := strings.Cut(name, "/")
	if !found {
		return url.PathEscape(name)
	}
	return url.PathEscape(scope) + "%2f" + url.PathEscape(pkg)
}

// PickVersion selects the greatest version in doc's published set that
// satisfies rng under standard semver precedence (spec §4.4, Testable
// Property 3). Pre-release versions are only eligible when rng itself
// references a pre-release on the same (major, minor, patch). Masterminds/semver's
// Constraints only admit a pre-release when the constraint names one at all,
// on any version, so PickVersion additionally requires rng to contain the
// candidate's own "major.minor.patch-" prefix.
func PickVersion(doc *Document, rng string) (string, bool, error) {
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return "", false, fmt.Errorf("invalid range %q: %w", rng, err)
	}

	var best *semver.Version
	var bestRaw string
	for raw := range doc.Versions {
		v, err := semver.NewVersion(raw)
		if err != nil {
			continue // tolerate malformed published versions, same as the teacher's lenient parsers
		}
		if !constraint.Check(v) {
			continue
		}
		if v.Prerelease() != "" {
			triple := fmt.Sprintf("%d.%d.%d-", v.Major(), v.Minor(), v.Patch())
			if !strings.Contains(rng, triple) {
				continue
			}
		}
		if best == nil || v.GreaterThan(best) {
			best = v
			bestRaw = raw
		}
	}
	if best == nil {
		return "", false, nil
	}
	return bestRaw, true, nil
}
