package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"
)

func TestFetchMetadataScopedName(t *testing.T) {
	var requestedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestedPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"versions":{"1.0.0":{"dist":{"tarball":"https://registry.npmjs.org/@scope/pkg/-/pkg-1.0.0.tgz"}}}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, hclog.NewNullLogger())
	doc, err := c.FetchMetadata(context.Background(), "@scope/pkg")
	assert.NilError(t, err)
	assert.Equal(t, requestedPath, "/@scope%2fpkg")
	assert.Equal(t, doc.Versions["1.0.0"].Dist.Tarball, "https://registry.npmjs.org/@scope/pkg/-/pkg-1.0.0.tgz")
}

func TestFetchMetadataNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, hclog.NewNullLogger())
	c.HTTP.RetryMax = 0
	_, err := c.FetchMetadata(context.Background(), "does-not-exist")
	assert.ErrorContains(t, err, "status 404")
}

func TestPickVersionGreatestSatisfying(t *testing.T) {
	doc := &Document{Versions: map[string]Version{
		"1.0.0": {},
		"1.2.0": {},
		"2.0.0": {},
	}}

	version, ok, err := PickVersion(doc, "^1.0.0")
	assert.NilError(t, err)
	assert.Assert(t, ok)
	assert.Equal(t, version, "1.2.0")
}

func TestPickVersionNoneSatisfy(t *testing.T) {
	doc := &Document{Versions: map[string]Version{"1.0.0": {}}}

	_, ok, err := PickVersion(doc, "^2.0.0")
	assert.NilError(t, err)
	assert.Assert(t, !ok)
}

func TestPickVersionInvalidRange(t *testing.T) {
	doc := &Document{Versions: map[string]Version{"1.0.0": {}}}

	_, _, err := PickVersion(doc, "not-a-range!!")
	assert.ErrorContains(t, err, "invalid range")
}

func TestEncodeNameUnscoped(t *testing.T) {
	assert.Equal(t, encodeName("left-pad"), "left-pad")
}
