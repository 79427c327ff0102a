package pagecache

import (
	"fmt"
	"strings"
)

const keyPrefix = "pagedseq:page"

// Key identifies one cached page window.
type Key struct {
	// Namespace separates the pages of different sources (e.g. "orders").
	Namespace string

	Offset int64
	Limit  int64
}

// String generates the Redis key.
// Format: pagedseq:page:namespace:offset:limit
//
// Example:
//
//	pagedseq:page:orders:200:100
func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", namespacePrefix(k.Namespace), k.Offset, k.Limit)
}

// namespacePrefix returns the key prefix shared by all pages of namespace.
// Surrounding colons and whitespace are dropped.
func namespacePrefix(namespace string) string {
	ns := strings.Trim(strings.TrimSpace(namespace), ":")
	if ns == "" {
		return keyPrefix
	}
	return keyPrefix + ":" + ns
}
