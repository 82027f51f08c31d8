package validate

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"github.com/ndpkg/ndpkg/internal/depgraph"
	"github.com/ndpkg/ndpkg/internal/manifest"
	"github.com/ndpkg/ndpkg/internal/ndpath"
)

func writePackageJSON(t *testing.T, dir, content string) {
	t.Helper()
	assert.NilError(t, os.MkdirAll(dir, 0o755))
	assert.NilError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(content), 0o644))
}

// buildScenario lays out a tree exercising all three Issue kinds at once:
//
//   - "baz" is required by the root but never installed -> PackageNotInstalled
//   - "foo" is installed and correctly locked, but its own dependency "bar"
//     is installed and version-satisfying, yet absent from the lockfile's
//     nested entry for foo -> MissingPackageFromLock
//   - "qux" is installed at a version that no longer satisfies the root's
//     declared range -> WrongVersionInstalled
func buildScenario(t *testing.T) (*depgraph.Tree, *manifest.Lockfile) {
	t.Helper()
	root := t.TempDir()

	writePackageJSON(t, root, `{"name": "app", "version": "1.0.0", "dependencies": {"baz": "^1.0.0", "foo": "^1.0.0", "qux": "^1.0.0"}}`)
	writePackageJSON(t, filepath.Join(root, "node_modules", "foo"), `{"name": "foo", "version": "1.0.0", "dependencies": {"bar": "^1.0.0"}}`)
	writePackageJSON(t, filepath.Join(root, "node_modules", "foo", "node_modules", "bar"), `{"name": "bar", "version": "1.0.0"}`)
	writePackageJSON(t, filepath.Join(root, "node_modules", "qux"), `{"name": "qux", "version": "2.0.0"}`)

	tree, err := depgraph.Load(ndpath.AbsolutePath(root))
	assert.NilError(t, err)

	lockfile := &manifest.Lockfile{
		Name:            "app",
		Version:         "1.0.0",
		LockfileVersion: manifest.SupportedLockfileVersion,
		Dependencies: map[string]manifest.LockedDependency{
			"foo": {Version: "1.0.0"}, // no nested "bar" entry: deliberately missing
		},
	}

	return tree, lockfile
}

func TestValidateReportsAllThreeIssueKinds(t *testing.T) {
	tree, lockfile := buildScenario(t)

	issues, err := Validate(tree, lockfile)
	assert.NilError(t, err)

	assert.Assert(t, cmp.DeepEqual(issues, []Issue{
		PackageNotInstalled{Package: "baz"},
		MissingPackageFromLock{Package: "bar"},
		WrongVersionInstalled{Package: "qux", Expected: "^1.0.0", Actual: "2.0.0"},
	}))
}

func TestValidateCleanTreeReportsNothing(t *testing.T) {
	root := t.TempDir()
	writePackageJSON(t, root, `{"name": "app", "version": "1.0.0", "dependencies": {"foo": "^1.0.0"}}`)
	writePackageJSON(t, filepath.Join(root, "node_modules", "foo"), `{"name": "foo", "version": "1.0.0"}`)

	tree, err := depgraph.Load(ndpath.AbsolutePath(root))
	assert.NilError(t, err)

	lockfile := &manifest.Lockfile{
		Dependencies: map[string]manifest.LockedDependency{
			"foo": {Version: "1.0.0"},
		},
	}

	issues, err := Validate(tree, lockfile)
	assert.NilError(t, err)
	assert.Equal(t, len(issues), 0)
}
