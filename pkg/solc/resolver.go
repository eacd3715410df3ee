package solc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/forgelabs/bastion/pkg/errs"
)

// DefaultIndexURL is the public solc-bin release list used when Resolver's
// IndexURL is empty.
const DefaultIndexURL = "https://binaries.soliditylang.org/linux-amd64/list.json"

// releaseList is the subset of solc-bin's list.json this package consumes.
type releaseList struct {
	Releases map[string]string `json:"releases"` // version -> binary filename
}

// Resolver resolves a pragma constraint to a concrete solc version and
// ensures that version's binary is present in a local cache, fetching it
// over HTTP on first use. Grounded on the calls made against this boundary
// in original_source/sb/smartbugs.py (ensure_solc_versions_loaded,
// get_solc_version, get_solc_path) and original_source/sb/docker.py
// (the resolved binary staged into the container as bin/solc).
type Resolver struct {
	CacheDir string
	IndexURL string
	Client   *http.Client

	versions     []string
	versionFiles map[string]string
}

// NewResolver returns a Resolver caching under cacheDir.
func NewResolver(cacheDir string) *Resolver {
	return &Resolver{
		CacheDir: cacheDir,
		IndexURL: DefaultIndexURL,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureVersionsLoaded fetches (or reuses a previously-fetched) release
// index, caching it to disk so repeated runs don't re-fetch within a
// process's lifetime.
func (r *Resolver) EnsureVersionsLoaded() error {
	if r.versions != nil {
		return nil
	}

	indexPath := filepath.Join(r.CacheDir, "list.json")
	data, err := os.ReadFile(indexPath)
	if err != nil {
		data, err = r.fetch(r.IndexURL)
		if err != nil {
			return fmt.Errorf("%w: fetching solc release index: %v", errs.ErrConfiguration, err)
		}
		if mkErr := os.MkdirAll(r.CacheDir, 0o755); mkErr == nil {
			_ = os.WriteFile(indexPath, data, 0o644)
		}
	}

	var list releaseList
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("%w: parsing solc release index: %v", errs.ErrConfiguration, err)
	}

	versions := make([]string, 0, len(list.Releases))
	for v := range list.Releases {
		versions = append(versions, v)
	}
	r.versions = versions
	r.versionFiles = list.Releases
	return nil
}

// GetVersion resolves pragma (e.g. "^0.8.0") to a concrete version string
// from the loaded release index.
func (r *Resolver) GetVersion(pragma string) (string, error) {
	if err := r.EnsureVersionsLoaded(); err != nil {
		return "", err
	}
	return ResolveVersion(pragma, r.versions)
}

// GetPath ensures version's binary is cached locally and returns its path,
// downloading it on first use.
func (r *Resolver) GetPath(version string) (string, error) {
	if err := r.EnsureVersionsLoaded(); err != nil {
		return "", err
	}
	filename, ok := r.versionFiles[version]
	if !ok {
		return "", fmt.Errorf("%w: unknown solc version %q", errs.ErrConfiguration, version)
	}

	dir := filepath.Join(r.CacheDir, version)
	path := filepath.Join(dir, "solc")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := r.fetch(indexBaseURL(r.IndexURL) + "/" + filename)
	if err != nil {
		return "", fmt.Errorf("%w: downloading solc %s: %v", errs.ErrConfiguration, version, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating compiler cache dir %s: %v", errs.ErrIO, dir, err)
	}
	if err := os.WriteFile(path, data, 0o755); err != nil {
		return "", fmt.Errorf("%w: writing solc binary to %s: %v", errs.ErrIO, path, err)
	}
	return path, nil
}

func (r *Resolver) fetch(url string) ([]byte, error) {
	resp, err := r.Client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func indexBaseURL(indexURL string) string {
	if i := strings.LastIndex(indexURL, "/"); i >= 0 {
		return indexURL[:i]
	}
	return indexURL
}

// defaultPlatform exists so the chosen index URL can be swapped per-arch in
// a future revision; bastion only ships a linux-amd64 default today.
var defaultPlatform = runtime.GOOS + "-" + runtime.GOARCH
