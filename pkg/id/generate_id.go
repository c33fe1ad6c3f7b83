package id

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID32 returns a 32-character lowercase hex identifier. Every public
// reference (loan, payment, liquidation record, reconcile task) uses this
// format.
func NewID32() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}
