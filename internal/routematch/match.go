// Package routematch implements the glob-style domain-suffix matching used
// to route DIAL frames across federation links (spec §4.11):
// patterns like "*@subdomain.tld" match any address whose domain is or
// ends with "subdomain.tld".
package routematch

import "strings"

// Match reports whether address satisfies pattern. A pattern is either a
// literal address, a bare domain ("subdomain.tld", matched against the
// address's domain suffix), or "*@domain.tld" (equivalent to the bare
// domain form, spelled the way the wire protocol announces it).
func Match(pattern, address string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if pattern == address {
		return true
	}

	domainPattern := pattern
	if strings.HasPrefix(pattern, "*@") {
		domainPattern = pattern[len("*@"):]
	} else if idx := strings.IndexByte(pattern, '@'); idx >= 0 {
		// a fully-specified, non-wildcard local@domain pattern that wasn't
		// an exact match above can never match.
		return false
	}

	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return false
	}
	domain := address[at+1:]

	domain = strings.ToLower(domain)
	domainPattern = strings.ToLower(domainPattern)
	return domain == domainPattern || strings.HasSuffix(domain, "."+domainPattern)
}

// AnyMatch reports whether address matches any of patterns.
func AnyMatch(patterns []string, address string) bool {
	for _, p := range patterns {
		if Match(p, address) {
			return true
		}
	}
	return false
}
