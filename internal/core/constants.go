package core

import "time"

// Capture timeouts
const (
	DefaultCaptureTimeout   = 45 * time.Second
	DefaultResourceTimeout  = 10 * time.Second
	DefaultNetworkIdleDelay = 500 * time.Millisecond
)

// MaxResourceSize caps a single inlined resource.
const MaxResourceSize = 5 * 1024 * 1024

const UserAgent = "Mozilla/5.0 (compatible; pocketsync/1.0)"
