package event

import "reflect"

type Event interface {
	Type() string
}

var (
	ClientUnblockedEventType = "ClientUnblockedEvent"
	ClientBlockedEventType   = "ClientBlockedEvent"
)

var Registry = map[string]reflect.Type{
	ClientUnblockedEventType: reflect.TypeOf(ClientUnblockedEvent{}),
	ClientBlockedEventType:   reflect.TypeOf(ClientBlockedEvent{}),
}
