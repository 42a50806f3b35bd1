// Package shard maps entity ids to store replicas.
//
// Ids carry their own placement: "order:3981", "item:17", "user:404" all end
// in a numeric suffix, and suffix modulo replica count picks the shard. No
// directory service, no lookup round trip. The trade-off is that the replica
// count is fixed for the lifetime of a deployment; re-sharding is not
// supported.
package shard

import (
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shard-checkout/internal/apperr"
)

// Index returns the replica index for an entity id. A malformed id (no
// numeric suffix after the last ':') is an invalid_input fault, never a
// silent fallback to replica 0.
func Index(id string, replicas int) (int, error) {
	if replicas <= 0 {
		return 0, apperr.Invalid("replica count must be > 0, got %d", replicas)
	}
	i := strings.LastIndexByte(id, ':')
	if i < 0 || i == len(id)-1 {
		return 0, apperr.Invalid("id %q has no numeric suffix", id)
	}
	n, err := strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return 0, apperr.Invalid("id %q has no numeric suffix", id)
	}
	return int(n % uint64(replicas)), nil
}
