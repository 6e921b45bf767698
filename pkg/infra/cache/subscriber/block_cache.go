package subscriber

import "time"

// BlockCache is the local view of blocked clients kept by each instance.
type BlockCache interface {
	Remember(clientKey string, until time.Time)
	Forget(clientKey string)
}
