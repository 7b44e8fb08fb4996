package rabbit

import "time"

const (
	DefaultQueues      = 12
	DefaultQueueExpiry = 60 * time.Second
	DefaultPrefetch    = 5
)
