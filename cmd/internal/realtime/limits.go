package realtime

import "time"

// Security/performance limits for the websocket layer.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 32 << 10 // 32 KiB

	// Max room name length (runes).
	maxRoomChars = 128
)

const (
	// Server-side ping defaults (overridable by env in ws_gateway.go).
	pingInterval = 25 * time.Second
	pingTimeout  = 5 * time.Second

	// Per-connection rate limits (events per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
