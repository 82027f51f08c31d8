// Package tarball implements the Tarball Pipeline (spec §4.3, C3): stream a
// gzipped tar from a URL into a cache slot, stripping the conventional
// leading "package/" path component and rejecting any entry that would
// escape the slot.
//
// Path-safety checking is grounded on the teacher's
// internal/cacheitem.restoreEntry / checkName / canonicalizeName: that code
// restores a turbo-authored tar defensively ("we're permissive on creation,
// but restrictive on restoration"). Here the pipeline is restrictive on both
// ends, because unlike turbo's own cache format, a registry tarball is
// untrusted third-party content. Per spec §1's Out-of-scope note, the
// gzip/tar decoders themselves are the standard library's compress/gzip and
// archive/tar — the teacher already depends on archive/tar from the standard
// library for its own cache format and only reaches for a third-party codec
// (DataDog/zstd) for a different compression scheme than gzip.
package tarball

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ndpkg/ndpkg/internal/cachestore"
	"github.com/ndpkg/ndpkg/internal/nderrors"
	"github.com/ndpkg/ndpkg/internal/ndpath"
)

// leadingComponent is the conventional wrapper directory inside npm-style
// tarballs, stripped on extraction (spec §4.3 step 3).
const leadingComponent = "package"

// FetchAndExtract performs the streaming pipeline: HTTP GET -> gunzip -> tar
// entry iterator -> disk materialization into stagingDir (which the caller
// subsequently promotes into the cache once this returns successfully).
// On success it returns the digest (method + hex hash) computed by hashing
// the gzipped bytes as they are consumed from the response body.
func FetchAndExtract(ctx context.Context, client *retryablehttp.Client, url string, stagingDir ndpath.AbsolutePath) (cachestore.Integrity, error) {
	req, err := retryablehttp.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return cachestore.Integrity{}, fmt.Errorf("building tarball request: %w", err)
	}
	req = req.WithContext(ctx)

	resp, err := client.Do(req)
	if err != nil {
		return cachestore.Integrity{}, &nderrors.HttpError{URL: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return cachestore.Integrity{}, &nderrors.HttpError{URL: url, Status: resp.StatusCode}
	}

	digest := sha256.New()
	tee := io.TeeReader(resp.Body, digest)

	if err := os.MkdirAll(stagingDir.ToString(), 0o755); err != nil {
		return cachestore.Integrity{}, &nderrors.IoError{Path: stagingDir.ToString(), Cause: err}
	}
	if err := extract(tee, stagingDir); err != nil {
		return cachestore.Integrity{}, err
	}

	return cachestore.Integrity{
		Method: cachestore.DefaultDigestMethod,
		Hash:   hexDigest(digest),
	}, nil
}

func hexDigest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// extract reads a gzipped tar stream and materializes its entries under
// slotDir, applying the policy from spec §4.3 steps 1-6.
func extract(r io.Reader, slotDir ndpath.AbsolutePath) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return &nderrors.InvalidTarball{Reason: "not a gzip stream: " + err.Error()}
	}
	defer gz.Close()

	tr := tar.NewReader(gz)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return &nderrors.InvalidTarball{Reason: "truncated or corrupt stream: " + err.Error()}
		}

		// Step 2: a pax-global-extensions header is a sentinel that appears
		// at most once, at the head of the archive. Ill-formed archives may
		// place unsafe entries after it, so we stop trusting the archive
		// entirely rather than continue.
		if header.Typeflag == tar.TypeXGlobalHeader {
			return nil
		}

		dest, ok, err := destinationPath(slotDir, header.Name)
		if err != nil {
			return err
		}
		if !ok {
			return &nderrors.InvalidTarball{Reason: fmt.Sprintf("path escape: %q", header.Name)}
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest.ToString(), 0o755); err != nil {
				return &nderrors.IoError{Path: dest.ToString(), Cause: err}
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			// Symlinks, hard links, devices, fifos: skipped, not
			// materialized (spec §4.3 step 6, Design Note "Entry-type
			// policy") — a symlink target isn't covered by the
			// containment check applied to the link's own name, so
			// trading fidelity for safety is the spec's chosen policy.
			continue
		}
	}
}

// destinationPath computes the on-disk path for a tar entry: strip a single
// leading "package" path component if present, join the remainder onto
// slotDir, and verify the normalized result remains a descendant of slotDir
// (spec §4.3 step 3, Testable Property 1).
func destinationPath(slotDir ndpath.AbsolutePath, entryName string) (ndpath.AbsolutePath, bool, error) {
	unixName := filepath.ToSlash(entryName)
	unixName = strings.TrimPrefix(unixName, "/")

	segments := strings.Split(unixName, "/")
	if len(segments) > 0 && segments[0] == leadingComponent {
		segments = segments[1:]
	}
	remainder := strings.Join(segments, "/")

	dest := slotDir.Join(filepath.FromSlash(remainder))
	if !ndpath.Contains(slotDir, dest) {
		return "", false, nil
	}
	return dest, true, nil
}

func writeFile(dest ndpath.AbsolutePath, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dest.ToString()), 0o755); err != nil {
		return &nderrors.IoError{Path: dest.ToString(), Cause: err}
	}
	f, err := os.OpenFile(dest.ToString(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &nderrors.IoError{Path: dest.ToString(), Cause: err}
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return &nderrors.IoError{Path: dest.ToString(), Cause: err}
	}
	return nil
}
