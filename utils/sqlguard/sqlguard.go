// Package sqlguard validates user-supplied SQL before it is forwarded to the
// language model in SQL mode. Only single read-only statements pass.
package sqlguard

import (
	"fmt"
	"strings"
)

var allowedPrefixes = []string{
	"select",
	"with",
	"explain",
	"show",
}

var forbiddenKeywords = []string{
	"insert",
	"update",
	"delete",
	"drop",
	"alter",
	"create",
	"truncate",
	"grant",
	"revoke",
	"copy",
	"vacuum",
}

// Check returns nil when the query is a single read-only statement, otherwise
// an error describing the first violation found.
func Check(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("query is empty")
	}

	lower := strings.ToLower(trimmed)

	if strings.Contains(lower, "--") || strings.Contains(lower, "/*") {
		return fmt.Errorf("comment sequences are not allowed")
	}

	// A trailing semicolon is tolerated, anything after it is not.
	if idx := strings.Index(lower, ";"); idx >= 0 && strings.TrimSpace(lower[idx+1:]) != "" {
		return fmt.Errorf("multiple statements are not allowed")
	}

	allowed := false
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(lower, prefix+" ") || lower == prefix {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("only read-only queries are allowed")
	}

	for _, kw := range forbiddenKeywords {
		if containsWord(lower, kw) {
			return fmt.Errorf("keyword %q is not allowed", kw)
		}
	}

	return nil
}

func containsWord(s, word string) bool {
	idx := 0
	for {
		i := strings.Index(s[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(s[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(s) || !isWordChar(s[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(word)
	}
}

func isWordChar(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
