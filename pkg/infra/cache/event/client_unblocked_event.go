package event

type ClientUnblockedEvent struct {
	ClientKey string `json:"client_key"`
}

func (e ClientUnblockedEvent) Type() string {
	return ClientUnblockedEventType
}
