// Package ids generates record identifiers.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// Prefixes keep ids self-describing in logs and CLI output.
const (
	PrefixTeam       = "tm"
	PrefixArtisan    = "ar"
	PrefixProject    = "pj"
	PrefixAssignment = "as"
	PrefixUser       = "us"
)

// New returns a time-ordered identifier with the given prefix, e.g.
// "as_01HV7Q3K6G0000000000000000" (lowercased).
func New(prefix string) string {
	return NewAt(prefix, time.Now())
}

// NewAt is New with an explicit timestamp.
func NewAt(prefix string, t time.Time) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	entropyMu.Unlock()
	s := strings.ToLower(id.String())
	if prefix == "" {
		return s
	}
	return prefix + "_" + s
}
