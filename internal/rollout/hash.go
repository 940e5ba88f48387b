// Package rollout implements the Rollout Controller: deterministic gating
// of hybrid-path traffic, an append-only audit log, and automated
// emergency rollback.
package rollout

import "github.com/cespare/xxhash/v2"

// stableHash is the deterministic, process/language-portable hash required
// by spec §4.4: a fixed 64-bit non-cryptographic hash of the UTF-8 bytes of
// "feature:repositoryID", reduced modulo 100. xxhash is chosen because it
// is already part of the dependency graph (pulled in indirectly) and is
// widely implemented outside Go, which is the portability property the
// spec asks for.
func stableHash(feature, repositoryID string) int {
	key := feature + ":" + repositoryID
	return int(xxhash.Sum64String(key) % 100)
}
