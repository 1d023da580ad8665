package session

import "strings"

// maxKeyBytes bounds a normalised session key length so it always fits
// safely in a filename component across filesystems.
const maxKeyBytes = 200

// NormalizeKey turns a caller-supplied opaque string into an ASCII-safe,
// filesystem-safe session key. The transformation is lossless in the
// sense that distinct inputs that differ only in characters this
// function strips are the only inputs that can collide; path
// separators and non-printing runes are replaced with "_" rather than
// dropped, so "a/b" and "a_b" do collide, but that trade-off keeps the
// key readable, which the flat, human-inspectable JSONL layout wants.
func NormalizeKey(raw string) string {
	if raw == "" {
		raw = "default"
	}
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r == '/' || r == '\\' || r == 0:
			b.WriteByte('_')
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case r > 0x7e:
			// Non-ASCII: keep the key ASCII-only by replacing with "_".
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	key := b.String()
	if len(key) > maxKeyBytes {
		key = key[:maxKeyBytes]
	}
	if key == "" {
		key = "default"
	}
	return key
}
