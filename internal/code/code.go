// Package code mints and recognizes canonical item codes in the
// PREFIX-YYMM-XXX-NNNNN shape, e.g. SS-2602-ABC-00017.
package code

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

const DefaultPrefix = "SS"

var canonicalPattern = regexp.MustCompile(`^[A-Z]{2}-\d{4}-[A-Z0-9]{3}-\d{5}$`)

const alphanumerics = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IsCanonical reports whether s already has the canonical code shape.
// Callers are expected to trim and uppercase first.
func IsCanonical(s string) bool {
	return canonicalPattern.MatchString(s)
}

// New mints a canonical code: two-letter prefix, YYMM date segment,
// three random alphanumerics, and a five-digit sequence.
func New(prefix string, seq int, now time.Time) string {
	if len(prefix) != 2 {
		prefix = DefaultPrefix
	}
	if seq < 0 {
		seq = 0
	}
	return fmt.Sprintf("%s-%s-%s-%05d", prefix, now.UTC().Format("0601"), randomSegment(3), seq%100000)
}

func randomSegment(n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphanumerics)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand failing is effectively fatal elsewhere; fall back
			// to a fixed character rather than panic in code minting.
			out[i] = 'A'
			continue
		}
		out[i] = alphanumerics[idx.Int64()]
	}
	return string(out)
}
