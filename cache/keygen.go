package cache

import (
	"crypto/md5"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyFor builds a stable cache key from a path and its parameters. Parameters
// are sorted and empty values skipped, so equal queries always share a key.
// Values are query-escaped and cannot forge another parameter.
func KeyFor(path string, params map[string]string) string {
	var parts []string
	for k, v := range params {
		if v == "" {
			continue
		}
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
	}
	sort.Strings(parts)

	cleanPath := strings.Trim(strings.ReplaceAll(path, "/", ":"), ":")
	key := cleanPath
	if len(parts) > 0 {
		key = fmt.Sprintf("%s?%s", cleanPath, strings.Join(parts, "&"))
	}

	// Very long keys (search keywords) are hashed to keep Redis keys bounded.
	if len(key) > 200 {
		return fmt.Sprintf("hash:%x", md5.Sum([]byte(key)))
	}
	return key
}

// PageKey is the client-side key of one listing page: {prefix}_{page}.
func PageKey(prefix string, page int) string {
	return fmt.Sprintf("%s_%d", prefix, page)
}
