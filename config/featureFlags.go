package config

import (
	"os"
	"strconv"
	"strings"
)

// SheetSyncSchedulerEnabled controls the in-process scheduler loop that drives
// periodic portfolio syncs and write-back dispatch.
//
// Set via env:
// - SHEET_SYNC_SCHEDULER=true
func SheetSyncSchedulerEnabled() bool {
	return envBool("SHEET_SYNC_SCHEDULER", true)
}

// SheetSyncUsePubSub routes manual sync triggers through Pub/Sub instead of
// running the orchestrator inline in the request.
//
// Set via env:
// - SHEET_SYNC_USE_PUBSUB=true
func SheetSyncUsePubSub() bool {
	return envBool("SHEET_SYNC_USE_PUBSUB", false)
}

// WritebackEnabled gates the write-back dispatcher. Enqueue always works so no
// domain events are lost while dispatch is paused.
//
// Set via env:
// - SHEET_WRITEBACK_ENABLED=true
func WritebackEnabled() bool {
	return envBool("SHEET_WRITEBACK_ENABLED", true)
}

// SheetSyncStaleAfterMinutes sets a fixed age after which a connection counts
// as stale. Zero (unset) keeps the default rule of three missed sync
// intervals.
//
// Set via env:
// - SHEET_SYNC_STALE_AFTER_MINUTES=240
func SheetSyncStaleAfterMinutes() int {
	v := strings.TrimSpace(os.Getenv("SHEET_SYNC_STALE_AFTER_MINUTES"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
