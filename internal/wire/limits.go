package wire

// Fixed bounds for the inline, null-terminated string fields carried
// directly in a slot body. Anything that might not fit — directory
// listings, read/write payloads, large xattr values — travels through an
// auxiliary shared-memory arena (package shm) whose name is one of these
// bounded strings.
const (
	MaxNameLen    = 236 // sized so RenameParams (two names, two handles) fits MaxPayloadSize
	MaxInlineData = 220 // small xattr values, symlink targets, ioctl args
	MaxArenaName  = 36  // "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
)

// PutString copies s into dst, truncating to len(dst) if necessary. The
// result is null-terminated when s is shorter than dst; when s is len(dst)
// bytes or longer, dst is filled with no terminator, strncpy-style.
func PutString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := len(s)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst, s[:n])
}

// GetString returns the string stored in src up to the first NUL byte (or
// the whole buffer if there is none).
func GetString(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}
