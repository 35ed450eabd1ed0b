// Package barcode issues and parses the scannable tokens printed on assemblies and batches.
//
// Tokens look like ASM-LX3K9ZQ1-9F2A61C0: a kind prefix, the issue time in base36
// milliseconds, and 32 random bits in hex, all uppercase.
package barcode

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/trackflow-backend/internal/domain/tracking"
)

const (
	PrefixAssembly = "ASM"
	PrefixBatch    = "BAT"
)

const randomBytes = 4

// Generator builds tokens. The zero value uses the wall clock and crypto/rand.
type Generator struct {
	Now    func() time.Time
	Random io.Reader
}

// Generate returns a new token with the given prefix.
func Generate(prefix string) (string, error) {
	return Generator{}.Generate(prefix)
}

func (g Generator) Generate(prefix string) (string, error) {
	prefix = strings.ToUpper(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(prefix), "-")))
	if prefix == "" {
		return "", fmt.Errorf("barcode prefix required")
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	src := rand.Reader
	if g.Random != nil {
		src = g.Random
	}
	buf := make([]byte, randomBytes)
	if _, err := io.ReadFull(src, buf); err != nil {
		return "", fmt.Errorf("barcode entropy: %w", err)
	}
	ts := strconv.FormatInt(now().UnixMilli(), 36)
	return strings.ToUpper(prefix + "-" + ts + "-" + hex.EncodeToString(buf)), nil
}

// PrefixFor returns the token prefix used for a barcode kind.
func PrefixFor(kind tracking.BarcodeKind) string {
	switch kind {
	case tracking.BarcodeKindAssembly:
		return PrefixAssembly
	case tracking.BarcodeKindBatch:
		return PrefixBatch
	default:
		return ""
	}
}

// Normalize trims surrounding whitespace. Lookups are otherwise exact.
func Normalize(token string) string {
	return strings.TrimSpace(token)
}

// HasPrefix reports whether token carries prefix, ignoring case and an optional trailing dash on prefix.
func HasPrefix(token, prefix string) bool {
	token = strings.ToUpper(Normalize(token))
	prefix = strings.ToUpper(strings.TrimSuffix(strings.TrimSpace(prefix), "-"))
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(token, prefix+"-")
}

// KindOf guesses the kind from the prefix alone. Custom tokens return "".
func KindOf(token string) tracking.BarcodeKind {
	switch {
	case HasPrefix(token, PrefixAssembly):
		return tracking.BarcodeKindAssembly
	case HasPrefix(token, PrefixBatch):
		return tracking.BarcodeKindBatch
	default:
		return ""
	}
}

// Issued returns the issue time encoded in a generated token.
func Issued(token string) (time.Time, bool) {
	parts := strings.Split(Normalize(token), "-")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(strings.ToLower(parts[1]), 36, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}
