package channel

type Channel string

const RateLimitEventsChannel Channel = "gatekeeper:ratelimit:events"
