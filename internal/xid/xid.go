package xid

import "github.com/google/uuid"

// New returns a prefixed random identifier such as "tx-1b4e28ba-2fa1-41d2-883f-0016d3cca427".
func New(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}
