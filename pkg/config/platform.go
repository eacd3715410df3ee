package config

import (
	"os"
	"runtime"

	"github.com/forgelabs/bastion/pkg/types"
)

// Platform builds the host metadata block carried into every TaskLog,
// mirroring the PLATFORM dict in original_source/sb/cfg.py (the "python"
// field has no Go analogue and is dropped; "smartbugs" becomes "bastion").
func Platform() types.PlatformInfo {
	host, _ := os.Hostname()
	return types.PlatformInfo{
		Bastion: Version,
		Go:      runtime.Version(),
		System:  runtime.GOOS,
		Release: host,
		Version: runtime.Version(),
		CPU:     runtime.GOARCH,
	}
}
