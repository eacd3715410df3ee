// Package config holds bastion's run configuration and shared scheduling
// state: Settings (read-mostly once Freeze'd), SharedState (the mutable
// dedup/accounting maps a run accumulates, guarded by a mutex), the
// YAML-backed tool descriptor loader (alias delegation, mode-keyed submap
// merge), the $KEY command/entrypoint template renderer, and the optional
// findings.yaml/site_cfg.yaml loaders.
package config
