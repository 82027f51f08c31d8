// Package validate implements the Tree Validator (spec §4.7, C7): load the
// installed node_modules tree and cross-check it against the manifest and
// lockfile using the same hoisted-lookup rules a JavaScript runtime would
// use to resolve a require()/import.
//
// Grounded on Design Note §9's recommendation to adopt the "walking form" of
// lockfile hoisted lookup (searching the deepest ancestor's nested
// dependencies first, then walking up) rather than a shallower root-only
// lookup — the source historically contained both, and the shallower one
// produces false positives for nested dependencies.
package validate

import (
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/ndpkg/ndpkg/internal/depgraph"
	"github.com/ndpkg/ndpkg/internal/manifest"
)

// Issue is a tagged discrepancy found by the Validator (spec §3).
type Issue interface {
	isIssue()
}

// MissingPackageFromLock: the manifest requires Package but the lockfile has
// no entry for it at the visibility the requirement was found under.
type MissingPackageFromLock struct {
	Package string
}

func (MissingPackageFromLock) isIssue() {}

// PackageNotInstalled: the manifest requires Package but no node exists on
// disk at that visibility.
type PackageNotInstalled struct {
	Package string
}

func (PackageNotInstalled) isIssue() {}

// WrongVersionInstalled: Package is present on disk but its version doesn't
// satisfy the range the manifest declared.
type WrongVersionInstalled struct {
	Package  string
	Expected string
	Actual   string
}

func (WrongVersionInstalled) isIssue() {}

// Validate runs both traversals from spec §4.7 over an already loaded
// installed tree (see depgraph.Load): the installed-presence check, then (for
// whatever it found installed) the lockfile-presence check. Issues are
// returned in traversal order, which is deterministic because depgraph.Load
// sorts node_modules entries lexicographically and this package sorts
// dependency-map keys the same way (Testable Property 5).
func Validate(tree *depgraph.Tree, lockfile *manifest.Lockfile) ([]Issue, error) {
	v := &validator{tree: tree, lockfile: lockfile}
	v.checkInstalled(tree.Root())
	return v.issues, nil
}

type validator struct {
	tree     *depgraph.Tree
	lockfile *manifest.Lockfile
	issues   []Issue
}

// checkInstalled runs the installed-presence check at node v, then (for each
// requirement that resolved to an installed node) the lockfile-presence
// check, then recurses into the found node's own requirements.
func (v *validator) checkInstalled(nodeIdx int) {
	node := v.tree.Node(nodeIdx)
	for _, name := range sortedKeys(node.Manifest.Dependencies) {
		rng := node.Manifest.Dependencies[name]

		foundIdx, ok := v.tree.Lookup(nodeIdx, name)
		if !ok {
			v.issues = append(v.issues, PackageNotInstalled{Package: name})
			continue
		}

		foundNode := v.tree.Node(foundIdx)
		if !satisfies(foundNode.Manifest.Version, rng) {
			v.issues = append(v.issues, WrongVersionInstalled{
				Package:  name,
				Expected: rng,
				Actual:   foundNode.Manifest.Version,
			})
			// Stop descending into this subtree (spec §4.7).
			continue
		}

		v.checkLockfile(foundIdx, name)
		v.checkInstalled(foundIdx)
	}
}

// checkLockfile performs the lockfile-presence check for name, found
// installed at foundIdx: look it up in the lockfile using the same hoisted
// rule, keyed by the installed tree's visibility path for foundIdx's parent
// (the directory foundIdx is installed under, which for a hoisted package is
// an ancestor of the requiring node rather than the requiring node itself).
func (v *validator) checkLockfile(foundIdx int, name string) {
	visibility := v.tree.VisibilityPath(foundIdx)
	// VisibilityPath(foundIdx) ends with name itself; dropping that last
	// entry leaves the parent's path, whose nested dependencies the
	// lockfile's hoisted Lookup searches first before walking up.
	if _, ok := v.lockfile.Lookup(name, visibility[:len(visibility)-1]); !ok {
		v.issues = append(v.issues, MissingPackageFromLock{Package: name})
	}
}

func satisfies(version, rng string) bool {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(rng)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
