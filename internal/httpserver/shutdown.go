package httpserver

import "time"

// ShutdownTimeout controls how long to wait for graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// DefaultWriteTimeout applies when no write timeout is configured.
const DefaultWriteTimeout = 60 * time.Second
