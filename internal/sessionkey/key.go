// Package sessionkey derives the identifier under which a conversation is stored.
package sessionkey

import "strings"

// Marker joins the canonical URL and the browser session token.
const Marker = "--session--"

// Derive composes canonicalURL and token into the session key and removes every
// '/' from the composed string.
//
// Slashes are stripped after concatenation, so distinct (url, token) pairs that
// differ only in slash placement map to the same key. Existing histories are
// stored under keys built this way; changing the order would orphan them.
func Derive(canonicalURL, token string) string {
	return strings.ReplaceAll(canonicalURL+Marker+token, "/", "")
}
