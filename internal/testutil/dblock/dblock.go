// Package dblock serializes Postgres-backed tests across packages by holding a
// loopback TCP port for the lifetime of the lock.
package dblock

import (
	"net"
	"os"
	"time"
)

const defaultLockAddr = "127.0.0.1:45433"

// Acquire blocks until the lock is free and returns its release function.
// PAYOUT_TEST_DB_LOCK_ADDR overrides the loopback address used as the lock.
func Acquire() func() {
	addr := os.Getenv("PAYOUT_TEST_DB_LOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return func() { _ = ln.Close() }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
