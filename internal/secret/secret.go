// Package secret holds the helpers used to handle bearer tokens without
// leaving plaintext copies behind.
package secret

import "unsafe"

// Erase overwrites b with zeros.
func Erase(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// View returns a string sharing its memory with b. The string is only valid
// until b is modified or erased and must not be retained.
func View(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// Clone returns a copy of b that the caller owns.
func Clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
