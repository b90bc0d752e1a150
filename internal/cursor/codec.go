// Package cursor converts native store ordering keys to opaque cursor tokens.
//
// A cursor is the fixed-width lowercase hex form of the key. Because every key
// of a given store has the same width, the byte order of keys and the
// lexicographic order of cursors agree, so a cursor can be compared directly
// against the sort order of a query.
package cursor

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gitter-badger/xread/internal/domain"
)

// Native key widths of the supported stores.
const (
	ObjectIDWidth = 12
	SequenceWidth = 8
)

// Codec encodes and decodes keys of one fixed width.
type Codec struct {
	Width int
}

// Encode returns the cursor for key.
func (c Codec) Encode(key []byte) string {
	return hex.EncodeToString(key)
}

// Decode parses a cursor back into its native key.
func (c Codec) Decode(token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", domain.ErrInvalidCursor)
	}
	if c.Width > 0 && len(token) != c.Width*2 {
		return nil, fmt.Errorf("%w: %q has length %d, want %d", domain.ErrInvalidCursor, token, len(token), c.Width*2)
	}
	key, err := hex.DecodeString(strings.ToLower(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", domain.ErrInvalidCursor, token, err)
	}
	return key, nil
}

// Compare orders two native keys.
func Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}
