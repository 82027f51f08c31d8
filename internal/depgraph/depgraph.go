// Package depgraph implements the Installed Tree loader and the in-memory
// Dependency Tree with hoisted lookup (spec §3, §4.7) used by the Tree
// Validator. The Resolver does not use it; it tracks placements itself.
//
// Per Design Note §9 ("Cyclic dependency graph -> arena + index"), nodes
// live in a flat slice and reference their parent by index rather than by a
// Go pointer back-reference, which keeps the lifetime of "back pointers"
// tied to the arena instead of to reference-counted cycles.
package depgraph

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ndpkg/ndpkg/internal/manifest"
	"github.com/ndpkg/ndpkg/internal/nderrors"
	"github.com/ndpkg/ndpkg/internal/ndpath"
)

// NodeModulesDir is the conventional directory name installed packages live
// under (spec §6).
const NodeModulesDir = "node_modules"

// noParent marks the root node, which has no parent index.
const noParent = -1

// Node is one package directory in the Installed Tree.
type Node struct {
	Name     string
	Manifest *manifest.Manifest
	parent   int
	children map[string]int // child package name -> arena index
}

// Tree is the arena holding every Node reachable from a root package
// directory, plus a root index.
type Tree struct {
	nodes []Node
	root  int
}

// Root returns the arena index of the tree's root node.
func (t *Tree) Root() int { return t.root }

// Node returns the node at index i.
func (t *Tree) Node(i int) *Node { return &t.nodes[i] }

// Load walks root's node_modules tree (scope directories whose name starts
// with "@" are transparent: their children are the real packages) and
// builds the arena. Directory entries are sorted lexicographically before
// recursing, which is what makes the Validator's issue ordering stable
// across platforms regardless of raw directory-iteration order (spec §4.7,
// Testable Property 5).
func Load(root ndpath.AbsolutePath) (*Tree, error) {
	t := &Tree{}
	idx, err := t.loadNode(root, noParent)
	if err != nil {
		return nil, err
	}
	t.root = idx
	return t, nil
}

func (t *Tree) loadNode(dir ndpath.AbsolutePath, parent int) (int, error) {
	m, err := manifest.Load(dir)
	if err != nil {
		return 0, err
	}

	idx := len(t.nodes)
	t.nodes = append(t.nodes, Node{
		Name:     m.Name,
		Manifest: m,
		parent:   parent,
		children: map[string]int{},
	})

	childNames, err := listPackageDirs(dir.Join(NodeModulesDir))
	if err != nil {
		return 0, err
	}
	for _, name := range childNames {
		childDir := dir.Join(NodeModulesDir, filepath.FromSlash(name))
		childIdx, err := t.loadNode(childDir, idx)
		if err != nil {
			return 0, err
		}
		t.nodes[idx].children[t.nodes[childIdx].Name] = childIdx
	}

	return idx, nil
}

// listPackageDirs enumerates the real package directories directly or
// indirectly (via a "@scope" directory) under nodeModules, sorted
// lexicographically, returned as paths relative to nodeModules (e.g. "foo"
// or "@scope/bar").
func listPackageDirs(nodeModules ndpath.AbsolutePath) ([]string, error) {
	entries, err := os.ReadDir(nodeModules.ToString())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &nderrors.IoError{Path: nodeModules.ToString(), Cause: err}
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), "@") {
			scopeEntries, err := os.ReadDir(nodeModules.Join(e.Name()).ToString())
			if err != nil {
				return nil, &nderrors.IoError{Path: nodeModules.Join(e.Name()).ToString(), Cause: err}
			}
			for _, se := range scopeEntries {
				if se.IsDir() {
					names = append(names, e.Name()+"/"+se.Name())
				}
			}
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Lookup implements the hoisted resolution rule (spec §4.7): starting from
// node v, search v's own children, then walk up one parent at a time,
// succeeding on the first hit and failing once the root is exhausted.
func (t *Tree) Lookup(v int, name string) (int, bool) {
	for i := v; i != noParent; i = t.nodes[i].parent {
		if childIdx, ok := t.nodes[i].children[name]; ok {
			return childIdx, true
		}
		if i == t.root {
			break
		}
	}
	return 0, false
}

// VisibilityPath returns the ordered list of package names from the root's
// immediate child down to and including v, excluding the synthetic root
// node itself (the root has no entry in a Lockfile's Dependencies map — its
// children are the map's top-level keys). This is the key the Lockfile's
// own hoisted Lookup is parameterized by (spec §4.7): v's own name is the
// deepest entry, since hoisted lookup starts by searching the current
// node's own nested dependencies before walking up. The root itself yields an
// empty path, which makes Lockfile.Lookup start at the top-level Dependencies
// map; a direct dependency of the root yields a one-element path holding its
// own name.
func (t *Tree) VisibilityPath(v int) []string {
	var chain []int
	for i := v; i != t.root; i = t.nodes[i].parent {
		chain = append(chain, i)
	}
	// chain is leaf-to-root (excluding root); reverse to root-to-leaf.
	path := make([]string, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		path = append(path, t.nodes[chain[i]].Name)
	}
	return path
}
