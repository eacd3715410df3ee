// Package solc resolves a Solidity pragma constraint to a concrete compiler
// version and ensures that version's binary is cached locally, fetching it
// over HTTP from the public solc-bin release index on first use.
package solc
