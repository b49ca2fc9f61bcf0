package turn

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
	"unicode"
)

const maxResourceNameLen = 40

// SanitizeResourceName converts a display name into a provider-safe resource
// identifier: lowercase alphanumerics with single hyphens, suffixed with a
// time+random token so repeated uploads of the same file never collide. The
// result is never empty and never exceeds maxResourceNameLen.
func SanitizeResourceName(displayName string) string {
	var b strings.Builder
	lastHyphen := true // suppress a leading hyphen
	for _, r := range strings.ToLower(displayName) {
		switch {
		case r >= 'a' && r <= 'z', unicode.IsDigit(r) && r < 128:
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	base := strings.Trim(b.String(), "-")

	suffix := fmt.Sprintf("%d-%04d", time.Now().Unix(), rand.Intn(10000))
	if base == "" {
		return "file-" + suffix
	}

	// Leave room for the suffix before appending it.
	if max := maxResourceNameLen - len(suffix) - 1; len(base) > max {
		base = strings.TrimRight(base[:max], "-")
	}
	name := base + "-" + suffix
	if len(name) > maxResourceNameLen {
		name = name[:maxResourceNameLen]
	}
	return strings.Trim(name, "-")
}
