package event

import "time"

type ClientBlockedEvent struct {
	ClientKey  string    `json:"client_key"`
	BlockUntil time.Time `json:"block_until"`
}

func (e ClientBlockedEvent) Type() string {
	return ClientBlockedEventType
}
