// Package cachestore implements the Cache Store (spec §4.2, C2): a
// content-addressed directory store of extracted archives, one directory per
// (name, version), with a ".nd-integrity" sidecar marking completion.
//
// clone_into is implemented with github.com/karrick/godirwalk, the same
// library the teacher's internal/fs.RecursiveCopy / WalkMode use for
// mirroring one directory subtree into another. mark_complete writes the
// sidecar to a temp path and renames it into place, so completion is atomic
// from the point of view of a concurrent reader, matching the teacher's own
// cache metadata file handling in internal/cache/cache_fs.go.
package cachestore

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/karrick/godirwalk"

	"github.com/ndpkg/ndpkg/internal/nderrors"
	"github.com/ndpkg/ndpkg/internal/ndpath"
)

// SidecarName is the integrity sidecar's filename within a slot (spec §3, §6).
const SidecarName = ".nd-integrity"

// DefaultDigestMethod is the algorithm identifier stamped into the sidecar
// when the Tarball Pipeline computes a digest (spec §4.3).
const DefaultDigestMethod = "sha256"

// Integrity is the JSON shape of the sidecar file.
type Integrity struct {
	Method string `json:"method"`
	Hash   string `json:"hash"`
}

// Store is a content-addressed cache rooted at Root.
type Store struct {
	Root ndpath.AbsolutePath
}

// New returns a Store rooted at root, creating the directory if absent.
func New(root ndpath.AbsolutePath) (*Store, error) {
	if err := os.MkdirAll(root.ToString(), 0o755); err != nil {
		return nil, &nderrors.IoError{Path: root.ToString(), Cause: err}
	}
	return &Store{Root: root}, nil
}

// SlotPath returns the directory for (name, version). Scoped names
// (@scope/pkg) store the scope and package name as two path segments
// (spec §6).
func (s *Store) SlotPath(name, version string) ndpath.AbsolutePath {
	return s.Root.Join(filepath.Join(filepath.FromSlash(name), version))
}

// NewStagingDir returns a fresh, not-yet-visible directory the Tarball
// Pipeline can extract into before the slot is known to be complete. Using a
// uuid-suffixed sibling directory (rather than extracting directly into the
// final slot path) means a crash mid-extraction never leaves a half-written
// directory sitting at the path future readers will call IsComplete on.
func (s *Store) NewStagingDir(name, version string) ndpath.AbsolutePath {
	slot := s.SlotPath(name, version)
	return ndpath.AbsolutePath(slot.ToString() + ".staging-" + uuid.NewString())
}

// IsComplete returns true iff the slot's sidecar exists and parses (spec §4.2).
func (s *Store) IsComplete(name, version string) bool {
	data, err := os.ReadFile(s.SlotPath(name, version).Join(SidecarName).ToString())
	if err != nil {
		return false
	}
	var integrity Integrity
	return json.Unmarshal(data, &integrity) == nil
}

// Promote moves a completed staging directory into its final slot path and
// writes the integrity sidecar as the last step, so completion is atomic
// from the point of view of future readers of IsComplete.
func (s *Store) Promote(staging ndpath.AbsolutePath, name, version string, integrity Integrity) error {
	slot := s.SlotPath(name, version)
	if err := os.MkdirAll(filepath.Dir(slot.ToString()), 0o755); err != nil {
		return &nderrors.IoError{Path: slot.ToString(), Cause: err}
	}
	// Best-effort: a slot that's already complete (a racing extraction lost
	// the promote) is left alone and ours is discarded.
	if err := os.Rename(staging.ToString(), slot.ToString()); err != nil {
		if s.IsComplete(name, version) {
			_ = os.RemoveAll(staging.ToString())
			return nil
		}
		return &nderrors.IoError{Path: slot.ToString(), Cause: err}
	}

	data, err := json.Marshal(integrity)
	if err != nil {
		return fmt.Errorf("encoding integrity sidecar: %w", err)
	}
	tmp := slot.Join(SidecarName + ".tmp-" + uuid.NewString())
	if err := os.WriteFile(tmp.ToString(), data, 0o644); err != nil {
		return &nderrors.IoError{Path: tmp.ToString(), Cause: err}
	}
	if err := os.Rename(tmp.ToString(), slot.Join(SidecarName).ToString()); err != nil {
		return &nderrors.IoError{Path: slot.ToString(), Cause: err}
	}
	return nil
}

// CloneInto mirrors a complete slot's contents to dest. Callers MUST NOT
// call this against an incomplete slot (spec §4.3).
func (s *Store) CloneInto(name, version string, dest ndpath.AbsolutePath) error {
	slot := s.SlotPath(name, version)
	if err := os.MkdirAll(dest.ToString(), 0o755); err != nil {
		return &nderrors.IoError{Path: dest.ToString(), Cause: err}
	}
	return recursiveCopy(slot.ToString(), dest.ToString())
}

// recursiveCopy mirrors the teacher's fs.RecursiveCopy: walk the source tree
// with godirwalk and re-create each directory/file at the corresponding
// destination path. The integrity sidecar is intentionally skipped — it
// describes the cache slot's own completeness, not the installed package.
func recursiveCopy(from, to string) error {
	return godirwalk.Walk(from, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, dirent *godirwalk.Dirent) error {
			rel, err := filepath.Rel(from, path)
			if err != nil {
				return err
			}
			if rel == SidecarName {
				return nil
			}
			dest := filepath.Join(to, rel)
			if rel == "." {
				dest = to
			}

			isDir, err := dirent.IsDirOrSymlinkToDir()
			if err != nil {
				return err
			}
			if isDir {
				return os.MkdirAll(dest, 0o755)
			}
			return copyFile(path, dest)
		},
	})
}

func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return err
	}
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
