package resolve

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"gotest.tools/v3/assert"

	"github.com/ndpkg/ndpkg/internal/manifest"
	"github.com/ndpkg/ndpkg/internal/registry"
)

// fakeRegistry serves canned metadata documents keyed by package name.
func fakeRegistry(t *testing.T, docs map[string]registry.Document) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[1:] // strip leading slash; test fixtures use unscoped names only
		doc, ok := docs[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NilError(t, json.NewEncoder(w).Encode(doc))
	}))
}

func TestResolveHoistsNonConflictingNestedDep(t *testing.T) {
	docs := map[string]registry.Document{
		"foo": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/foo-1.0.0.tgz"}, Dependencies: map[string]string{"bar": "^1.0.0"}},
		}},
		"bar": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/bar-1.0.0.tgz"}},
		}},
	}
	srv := fakeRegistry(t, docs)
	defer srv.Close()

	root := &manifest.Manifest{
		Name:         "app",
		Dependencies: map[string]string{"foo": "^1.0.0", "bar": "^1.0.0"},
	}

	client := registry.New(srv.URL, hclog.NewNullLogger())
	tasks, err := Resolve(context.Background(), root, client)
	assert.NilError(t, err)

	byName := map[string]string{}
	for _, task := range tasks {
		byName[task.Name] = task.InstallPath.ToString()
	}
	assert.Equal(t, len(tasks), 2)
	assert.Equal(t, byName["foo"], "node_modules/foo")
	assert.Equal(t, byName["bar"], "node_modules/bar")
}

func TestResolveNestsConflictingVersion(t *testing.T) {
	docs := map[string]registry.Document{
		"foo": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/foo-1.0.0.tgz"}, Dependencies: map[string]string{"bar": "^2.0.0"}},
		}},
		"bar": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/bar-1.0.0.tgz"}},
			"2.0.0": {Dist: registry.Dist{Tarball: "https://example.test/bar-2.0.0.tgz"}},
		}},
	}
	srv := fakeRegistry(t, docs)
	defer srv.Close()

	root := &manifest.Manifest{
		Name:         "app",
		Dependencies: map[string]string{"foo": "^1.0.0", "bar": "^1.0.0"},
	}

	client := registry.New(srv.URL, hclog.NewNullLogger())
	tasks, err := Resolve(context.Background(), root, client)
	assert.NilError(t, err)

	var installPaths []string
	for _, task := range tasks {
		installPaths = append(installPaths, task.Name+"@"+task.Version+" -> "+task.InstallPath.ToString())
	}
	sort.Strings(installPaths)

	assert.DeepEqual(t, installPaths, []string{
		"bar@1.0.0 -> node_modules/bar",
		"bar@2.0.0 -> node_modules/foo/node_modules/bar",
		"foo@1.0.0 -> node_modules/foo",
	})
}

func TestResolveNoCompatibleVersion(t *testing.T) {
	docs := map[string]registry.Document{
		"foo": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/foo-1.0.0.tgz"}},
		}},
	}
	srv := fakeRegistry(t, docs)
	defer srv.Close()

	root := &manifest.Manifest{Name: "app", Dependencies: map[string]string{"foo": "^2.0.0"}}
	client := registry.New(srv.URL, hclog.NewNullLogger())

	_, err := Resolve(context.Background(), root, client)
	assert.ErrorContains(t, err, "no version of foo satisfies range")
}

// A cycle that never passes back through a root-level dependency (so
// r.placed never dominates it) must still terminate: root -> Z -> X -> Y,
// and Y requires X again at the same version. Regression test for a hang
// where subtree expansion was memoized by install path (which only grows
// deeper on every pass through the cycle) instead of by (name, version).
func TestResolveTerminatesOnDependencyCycle(t *testing.T) {
	docs := map[string]registry.Document{
		"z": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/z-1.0.0.tgz"}, Dependencies: map[string]string{"x": "^1.0.0"}},
		}},
		"x": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/x-1.0.0.tgz"}, Dependencies: map[string]string{"y": "^1.0.0"}},
		}},
		"y": {Versions: map[string]registry.Version{
			"1.0.0": {Dist: registry.Dist{Tarball: "https://example.test/y-1.0.0.tgz"}, Dependencies: map[string]string{"x": "^1.0.0"}},
		}},
	}
	srv := fakeRegistry(t, docs)
	defer srv.Close()

	root := &manifest.Manifest{Name: "app", Dependencies: map[string]string{"z": "^1.0.0"}}
	client := registry.New(srv.URL, hclog.NewNullLogger())

	done := make(chan struct{})
	var tasks []Task
	var err error
	go func() {
		tasks, err = Resolve(context.Background(), root, client)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Resolve did not terminate on a dependency cycle")
	}

	assert.NilError(t, err)
	assert.Assert(t, len(tasks) >= 3, "expected at least one task per package in the cycle, got %d", len(tasks))

	names := map[string]bool{}
	for _, task := range tasks {
		names[task.Name] = true
	}
	assert.Assert(t, names["z"] && names["x"] && names["y"])
}
