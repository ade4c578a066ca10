package model

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// SessionIDTimeLayout is the UTC minute-precision timestamp inside a session ID.
const SessionIDTimeLayout = "20060102T1504"

// NewSessionID returns "sess_{YYYYMMDDTHHMM}_{4 hex}" for now in UTC.
// Two IDs minted in the same minute collide with probability 1/65536.
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("sess_%s_%s", now.UTC().Format(SessionIDTimeLayout), randomHex(2))
}

// NewTaskID returns "t" followed by 8 hex characters.
func NewTaskID() string {
	return "t" + randomHex(4)
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}
