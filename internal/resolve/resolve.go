// Package resolve implements the Resolver (spec §4.5, C5): given a root
// Manifest, compute the transitive closure of (name -> chosen version) pairs
// and the install tasks the Refresh Engine must carry out.
//
// The breadth-first, memoized-by-(name,version) walk is grounded on the
// teacher's internal/lockfile.transitiveClosureHelper, which walks a
// dependency graph the same shape (name -> range edges resolved against a
// lockfile) while memoizing already-resolved packages in a
// deckarep/golang-set Set. Per spec §5, the Resolver itself is not a
// concurrent subsystem (only the Refresh Engine is) so this walk is
// sequential; concurrency belongs to the caller driving C4/C3/C2 in
// parallel over the Tasks this package returns.
package resolve

import (
	"context"
	"fmt"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"

	"github.com/ndpkg/ndpkg/internal/manifest"
	"github.com/ndpkg/ndpkg/internal/nderrors"
	"github.com/ndpkg/ndpkg/internal/ndpath"
	"github.com/ndpkg/ndpkg/internal/registry"
)

// Task is one edge the Refresh Engine must install (spec §4.5).
type Task struct {
	Name        string
	Version     string
	TarballURL  string
	InstallPath ndpath.AnchoredPath
	ParentPath  ndpath.AnchoredPath // empty for a top-level install
}

// edge is one not-yet-resolved (parent, name, range) dependency declaration.
type edge struct {
	parentInstallPath ndpath.AnchoredPath
	rootInstallPath   bool // true when parentInstallPath is the project root itself
	name              string
	rng               string
}

// Resolve walks root's dependency graph breadth-first and returns the
// ordered set of install tasks (spec §4.5).
func Resolve(ctx context.Context, root *manifest.Manifest, client *registry.Client) ([]Task, error) {
	r := &resolver{
		client:     client,
		docsByName: map[string]*registry.Document{},
		placed:     map[string]string{}, // name -> version already placed at a dominating (root) location
	}

	var queue []edge
	for name, rng := range root.Dependencies {
		queue = append(queue, edge{rootInstallPath: true, name: name, rng: rng})
	}

	var tasks []Task
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		doc, err := r.metadata(ctx, e.name)
		if err != nil {
			return nil, err
		}

		version, ok, err := registry.PickVersion(doc, e.rng)
		if err != nil {
			return nil, errors.Wrapf(err, "picking version for %s", e.name)
		}
		if !ok {
			return nil, &nderrors.NoCompatibleVersion{Name: e.name, Range: e.rng}
		}

		// A (name, version) already placed at the root dominates every
		// nested edge asking for the identical version: the existing
		// placement already satisfies hoisted lookup for it (spec §4.5).
		if placedVersion, seen := r.placed[e.name]; seen && placedVersion == version && !e.rootInstallPath {
			continue
		}

		var installPath ndpath.AnchoredPath
		if e.rootInstallPath {
			installPath = ndpath.AnchoredPath("node_modules/" + e.name)
			r.placed[e.name] = version
		} else {
			// Any other nested edge (a name not placed at the root, or one
			// placed there at a conflicting version) gets a nested install
			// under its parent instead of being skipped.
			installPath = e.parentInstallPath.Join("node_modules", e.name)
		}

		versionInfo, ok := doc.Versions[version]
		if !ok {
			return nil, fmt.Errorf("internal error: picked version %s not present in metadata for %s", version, e.name)
		}

		tasks = append(tasks, Task{
			Name:        e.name,
			Version:     version,
			TarballURL:  versionInfo.Dist.Tarball,
			InstallPath: installPath,
			ParentPath:  e.parentInstallPath,
		})

		// Memoized by (name, version), per spec §4.5: a given version's own
		// dependency edges are only ever enqueued once, however many places
		// in the graph require that (name, version). Without this, a cycle
		// (e.g. root -> X -> Y -> X) re-discovers X's dependencies at an
		// ever-deeper installPath on every pass and the queue never drains.
		key := e.name + "@" + version
		if r.expanded == nil {
			r.expanded = mapset.NewSet()
		}
		if r.expanded.Contains(key) {
			continue
		}
		r.expanded.Add(key)

		for depName, depRange := range versionInfo.Dependencies {
			queue = append(queue, edge{parentInstallPath: installPath, name: depName, rng: depRange})
		}
	}

	return tasks, nil
}

type resolver struct {
	client     *registry.Client
	docsByName map[string]*registry.Document
	placed     map[string]string
	expanded   mapset.Set
}

// metadata fetches (and memoizes) the registry document for name, mirroring
// the Design Note §9 recommendation of a read-mostly map keyed by name.
func (r *resolver) metadata(ctx context.Context, name string) (*registry.Document, error) {
	if doc, ok := r.docsByName[name]; ok {
		return doc, nil
	}
	doc, err := r.client.FetchMetadata(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching metadata for %s", name)
	}
	r.docsByName[name] = doc
	return doc, nil
}
