// Package ndpath teaches the Go type system about two kinds of path used by
// this installer:
//
//   - AbsolutePath: a root-relative path using system separators. It is not
//     portable between machines and is only ever used to touch the real
//     filesystem (cache root, project root, node_modules target).
//   - AnchoredPath: a slash-separated path relative to some anchor that the
//     caller already knows (a cache slot, a node_modules tree). It is
//     portable and is what gets compared, sorted and stored in memory.
//
// This is a deliberately smaller version of the six-type path system the
// teacher repo uses (turbopath): that system distinguishes Unix/System and
// Absolute/Anchored/Relative paths because it has to run on Windows and
// juggle git-style forward-slash paths against OS-native ones everywhere.
// This installer's on-disk surface (cache slots, node_modules trees) is
// narrow enough that two types carry the same safety property (you cannot
// silently concatenate the wrong path kind) without the extra machinery.
package ndpath

import (
	"path/filepath"
	"strings"
)

// AbsolutePath is an absolute, OS-native filesystem path.
type AbsolutePath string

// ToString returns the string representation of this path.
func (p AbsolutePath) ToString() string {
	return string(p)
}

// Join appends system-relative segments to this AbsolutePath.
func (p AbsolutePath) Join(segments ...string) AbsolutePath {
	parts := append([]string{p.ToString()}, segments...)
	return AbsolutePath(filepath.Join(parts...))
}

// RelativeTo computes the AnchoredPath of p with respect to base.
func (p AbsolutePath) RelativeTo(base AbsolutePath) (AnchoredPath, error) {
	rel, err := filepath.Rel(base.ToString(), p.ToString())
	if err != nil {
		return "", err
	}
	return AnchoredPath(filepath.ToSlash(rel)), nil
}

// AnchoredPath is a slash-separated path relative to an anchor that is not
// itself tracked by the value (a cache slot directory, a node_modules root).
type AnchoredPath string

// ToString returns the string representation of this path.
func (p AnchoredPath) ToString() string {
	return string(p)
}

// RestoreAnchor prefixes this AnchoredPath with its anchor to produce an
// AbsolutePath, converting slashes to the OS-native separator.
func (p AnchoredPath) RestoreAnchor(anchor AbsolutePath) AbsolutePath {
	return anchor.Join(filepath.FromSlash(p.ToString()))
}

// Join appends slash-separated segments to this AnchoredPath.
func (p AnchoredPath) Join(segments ...string) AnchoredPath {
	parts := append([]string{p.ToString()}, segments...)
	return AnchoredPath(strings.Join(parts, "/"))
}

// Contains reports whether candidate, once joined onto root and lexically
// cleaned, remains root itself or a descendant of it. This is the core check
// behind the Tarball Pipeline's path-escape rejection (spec §4.3, Testable
// Property 1): an archive entry whose declared path contains `..` segments,
// or is itself absolute, must be rejected before a single byte is written if
// joining it onto the slot would land outside the slot.
func Contains(root AbsolutePath, candidate AbsolutePath) bool {
	rootClean := filepath.Clean(root.ToString())
	candidateClean := filepath.Clean(candidate.ToString())
	if candidateClean == rootClean {
		return true
	}
	return strings.HasPrefix(candidateClean, rootClean+string(filepath.Separator))
}
