package rescan

import (
	"path/filepath"
	"strings"

	"github.com/nordicnode/swarm/application"
)

// isIgnored reports whether relPath should be excluded from a rescan: its
// basename starts with "." or "~", or the supplied matcher says so. A
// panicking matcher is treated as "not ignored" so a broken ignore
// ruleset never silently hides files from sync.
func isIgnored(matcher application.IgnoreMatcher, relPath string) bool {
	base := filepath.Base(relPath)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~") {
		return true
	}
	if matcher == nil {
		return false
	}
	return safeIsIgnored(matcher, relPath)
}

func safeIsIgnored(matcher application.IgnoreMatcher, relPath string) (ignored bool) {
	defer func() {
		if recover() != nil {
			ignored = false
		}
	}()
	return matcher.IsIgnored(relPath)
}
