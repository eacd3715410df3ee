package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/types"
)

// ToolsHome is the directory containing one subdirectory per tool id, each
// holding a config.yaml (and optionally a findings.yaml).
var ToolsHome = "tools"

// LoadToolConfig loads and resolves a tool descriptor for (name, mode):
// reads tools/<name>/config.yaml, follows a single-target "alias: other"
// delegation, merges the mode-keyed sub-map (solidity/bytecode/runtime)
// over the top level, and validates the result. Mirrors
// original_source/sb/tools.py's Tool.load_configuration.
func LoadToolConfig(name string, mode types.Mode) (*types.Tool, error) {
	return loadToolConfig(ToolsHome, name, mode, make(map[string]bool))
}

func loadToolConfig(toolsHome, name string, mode types.Mode, seen map[string]bool) (*types.Tool, error) {
	if seen[name] {
		return nil, fmt.Errorf("%w: alias cycle detected at %q", errs.ErrConfiguration, name)
	}
	seen[name] = true

	raw, err := readRawConfig(toolsHome, name)
	if err != nil {
		return nil, err
	}

	if aliasVal, ok := raw["alias"]; ok {
		if target, ok := aliasVal.(string); ok {
			return loadToolConfig(toolsHome, target, mode, seen)
		}
		// a list alias (the coverage roster, e.g. tools/all/config.yaml) is
		// not a single-tool delegate; CoverageAlias reads it separately.
	}

	if sub, ok := raw[string(mode)]; ok {
		if subMap, ok := toStringMap(sub); ok {
			for k, v := range subMap {
				raw[k] = v
			}
		}
	}
	for _, modeKey := range []string{"solidity", "bytecode", "runtime", "alias"} {
		delete(raw, modeKey)
	}
	if _, ok := raw["id"]; !ok {
		raw["id"] = name
	}
	if _, ok := raw["mode"]; !ok {
		raw["mode"] = string(mode)
	}

	remarshaled, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: re-marshaling merged config for %q: %v", errs.ErrConfiguration, name, err)
	}
	var rc rawToolConfig
	if err := yaml.Unmarshal(remarshaled, &rc); err != nil {
		return nil, fmt.Errorf("%w: decoding merged config for %q: %v", errs.ErrConfiguration, name, err)
	}

	tool, err := rc.toTool()
	if err != nil {
		return nil, fmt.Errorf("tool %q: %w", name, err)
	}
	if tool.Bin != "" {
		tool.AbsBin = filepath.Join(toolsHome, name, tool.Bin)
	}
	return tool, nil
}

// CoverageAlias reads the "all" tool's alias list: the canonical roster of
// base tool ids considered for budget-mode saturation planning. Mirrors
// original_source/sb/budget.py's _read_all_tools_alias.
func CoverageAlias() ([]string, error) {
	raw, err := readRawConfig(ToolsHome, "all")
	if err != nil {
		return nil, err
	}
	aliasVal, ok := raw["alias"]
	if !ok {
		return nil, fmt.Errorf("%w: tools/all/config.yaml has no alias list", errs.ErrConfiguration)
	}
	items, ok := aliasVal.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: tools/all/config.yaml's alias is not a list", errs.ErrConfiguration)
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func readRawConfig(toolsHome, name string) (map[string]interface{}, error) {
	path := filepath.Join(toolsHome, name, ToolConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", errs.ErrConfiguration, path, err)
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", errs.ErrConfiguration, path, err)
	}
	return raw, nil
}

func toStringMap(v interface{}) (map[string]interface{}, bool) {
	m, ok := v.(map[string]interface{})
	return m, ok
}

// rawToolConfig is the merged, decoded shape of a tool's config.yaml after
// alias delegation and mode-submap merging.
type rawToolConfig struct {
	ID            string `yaml:"id"`
	Mode          string `yaml:"mode"`
	Image         string `yaml:"image"`
	Name          string `yaml:"name"`
	Origin        string `yaml:"origin"`
	Version       string `yaml:"version"`
	Info          string `yaml:"info"`
	Parser        string `yaml:"parser"`
	Output        string `yaml:"output"`
	Bin           string `yaml:"bin"`
	DefaultParams string `yaml:"default_params"`
	Solc          bool   `yaml:"solc"`
	CPUQuota      int64  `yaml:"cpu_quota"`
	MemLimit      string `yaml:"mem_limit"`
	Command       string `yaml:"command"`
	Entrypoint    string `yaml:"entrypoint"`
}

func (rc rawToolConfig) toTool() (*types.Tool, error) {
	if rc.Image == "" {
		return nil, fmt.Errorf("%w: missing required field %q", errs.ErrConfiguration, "image")
	}
	if rc.Command == "" && rc.Entrypoint == "" {
		return nil, fmt.Errorf("%w: at least one of command/entrypoint is required", errs.ErrConfiguration)
	}
	if rc.CPUQuota < 0 {
		return nil, fmt.Errorf("%w: cpu_quota must be >= 0, got %d", errs.ErrConfiguration, rc.CPUQuota)
	}
	if rc.MemLimit != "" {
		if err := validateMemLimit(rc.MemLimit); err != nil {
			return nil, err
		}
	}
	return &types.Tool{
		ID:            rc.ID,
		Mode:          types.Mode(rc.Mode),
		Image:         rc.Image,
		Name:          rc.Name,
		Origin:        rc.Origin,
		Version:       rc.Version,
		Info:          rc.Info,
		Parser:        rc.Parser,
		Output:        rc.Output,
		Bin:           rc.Bin,
		DefaultParams: rc.DefaultParams,
		Solc:          rc.Solc,
		CPUQuota:      rc.CPUQuota,
		MemLimit:      rc.MemLimit,
		CommandTpl:    rc.Command,
		EntrypointTpl: rc.Entrypoint,
	}, nil
}

// validateMemLimit requires a positive integer followed by a k/m/g suffix
// (case-insensitive), matching the original's mem_limit field validation.
func validateMemLimit(v string) error {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	suffix := v[len(v)-1]
	if suffix != 'k' && suffix != 'K' && suffix != 'm' && suffix != 'M' && suffix != 'g' && suffix != 'G' {
		return fmt.Errorf("%w: mem_limit %q must end in k/m/g", errs.ErrConfiguration, v)
	}
	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil || n <= 0 {
		return fmt.Errorf("%w: mem_limit %q must be a positive integer followed by k/m/g", errs.ErrConfiguration, v)
	}
	return nil
}
