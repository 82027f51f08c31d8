// Package manifest provides the Manifest and Lockfile data model (spec §3)
// and the two load operations of the Manifest Store (spec §4.1, C1).
//
// Shaped after the teacher's internal/fs.PackageJSON and
// internal/lockfile.NpmLockfile/NpmDependency: lower-camel-case JSON tags,
// unknown fields tolerated, optional fields defaulting to their zero value.
package manifest

import (
	"encoding/json"
	"os"

	"github.com/ndpkg/ndpkg/internal/nderrors"
	"github.com/ndpkg/ndpkg/internal/ndpath"
)

// alias so we can mock in tests
var osReadFile = os.ReadFile

const (
	manifestFilename = "package.json"
	lockfileFilename = "package-lock.json"

	// SupportedLockfileVersion is the only lockfileVersion this installer
	// understands. Spec §6 requires every other value to be rejected as
	// UnsupportedLockfileVersion rather than silently misread.
	SupportedLockfileVersion = 1
)

// Manifest describes a project or a package (spec §3).
type Manifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Description  string            `json:"description,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`

	// Root is the filesystem path this Manifest was loaded from. It is
	// transient: never serialized, and only valid for as long as
	// Root/package.json remains readable (spec §3 invariant).
	Root ndpath.AbsolutePath `json:"-"`
}

// Lockfile is a tree-shaped snapshot of a concrete install (spec §3).
type Lockfile struct {
	Name            string                      `json:"name"`
	Version         string                      `json:"version"`
	LockfileVersion int                         `json:"lockfileVersion"`
	Description     string                      `json:"description,omitempty"`
	Dependencies    map[string]LockedDependency `json:"dependencies,omitempty"`
}

// LockedDependency is one resolved entry in a Lockfile.
type LockedDependency struct {
	Version      string                      `json:"version"`
	Resolved     string                      `json:"resolved"`
	Integrity    string                      `json:"integrity"`
	Requires     map[string]string           `json:"requires,omitempty"`
	Dependencies map[string]LockedDependency `json:"dependencies,omitempty"`
}

// Load reads dir/package.json into a Manifest.
func Load(dir ndpath.AbsolutePath) (*Manifest, error) {
	path := dir.Join(manifestFilename)
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &nderrors.JsonError{Source: manifestFilename, Cause: err}
	}
	if m.Name == "" {
		return nil, &nderrors.JsonError{Source: manifestFilename, Cause: errMissingField("name")}
	}
	m.Root = dir
	return &m, nil
}

// LoadLockfile reads dir/package-lock.json into a Lockfile.
func LoadLockfile(dir ndpath.AbsolutePath) (*Lockfile, error) {
	path := dir.Join(lockfileFilename)
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	var lf Lockfile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, &nderrors.JsonError{Source: lockfileFilename, Cause: err}
	}
	if lf.LockfileVersion != SupportedLockfileVersion {
		return nil, &nderrors.UnsupportedLockfileVersion{Found: lf.LockfileVersion}
	}
	return &lf, nil
}

// Encode writes the Manifest back out as JSON, dropping the transient Root
// field and ignoring key order (Testable Property 4, round trip).
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Encode writes the Lockfile back out as JSON.
func (l *Lockfile) Encode() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

// Lookup walks visibility (ordered root-to-leaf ancestor names) and applies
// the hoisted lookup rule (spec §4.7) against this Lockfile's nested
// Dependencies: search the deepest ancestor's nested map first, then walk up
// one level at a time. It returns the found entry and whether it was found.
//
// This is the "walking form" Design Note §9 calls for, as opposed to a
// shallower root-only lookup: a lockfile entry nested several node_modules
// deep must still be visible to a sibling that doesn't declare its own
// nested copy.
func (l *Lockfile) Lookup(name string, visibility []string) (LockedDependency, bool) {
	for depth := len(visibility); depth >= 0; depth-- {
		deps := l.Dependencies
		found := true
		for i := 0; i < depth; i++ {
			entry, ok := deps[visibility[i]]
			if !ok {
				found = false
				break
			}
			deps = entry.Dependencies
		}
		if !found {
			continue
		}
		if entry, ok := deps[name]; ok {
			return entry, true
		}
	}
	return LockedDependency{}, false
}

type missingFieldError string

func errMissingField(field string) error { return missingFieldError(field) }

func (m missingFieldError) Error() string { return "missing required field: " + string(m) }

func readFile(path ndpath.AbsolutePath) ([]byte, error) {
	data, err := osReadFile(path.ToString())
	if err != nil {
		return nil, &nderrors.IoError{Path: path.ToString(), Cause: err}
	}
	return data, nil
}
