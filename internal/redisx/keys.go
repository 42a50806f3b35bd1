package redisx

import "time"

const (
	// Cache order snapshot: cache:order:{order_id} -> order JSON
	KeyOrderCache = "cache:order:%s"

	// Lock key per entity: lock:{entity_id}
	KeyLock = "lock:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLOrderCache = 5 * time.Minute
	TTLDedup      = 48 * time.Hour
)
