// Package storage holds helpers shared by the document store adapters.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// NextRev derives the revision token that authorises the write following
// current. Tokens are "<generation>-<random hex>": the generation makes
// staleness cheap to reason about in logs, the suffix keeps tokens opaque.
func NextRev(current string) string {
	return fmt.Sprintf("%d-%s", Generation(current)+1, randomSuffix())
}

// Generation extracts the numeric generation of a revision token.
// Unparseable or empty tokens count as generation zero.
func Generation(rev string) int64 {
	gen, _, ok := strings.Cut(rev, "-")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(gen, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func randomSuffix() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms; a zero suffix is
		// still a valid opaque token.
		return "00000000"
	}
	return hex.EncodeToString(b[:])
}
