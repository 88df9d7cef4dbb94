// Package idgen assigns server-side identifiers to sessions and
// elements using google/uuid rather than a remote-address-plus-timestamp
// scheme, which collides easily behind NAT or a shared proxy.
package idgen

import "github.com/google/uuid"

// New returns a fresh globally-unique identifier.
func New() string {
	return uuid.NewString()
}
