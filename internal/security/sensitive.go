package security

import "strings"

// sensitivePrefixes are destinations that trigger a transfer advisory.
var sensitivePrefixes = []string{
	"/etc",
	"/boot",
	"/bin",
	"/sbin",
	"/lib",
	"/usr/bin",
	"/usr/sbin",
	"/usr/lib",
	"/root/.ssh",
	"/var/lib/docker",
}

// IsSensitivePath reports whether p is, or lives under, a well-known system
// location.
func IsSensitivePath(p string) bool {
	for _, prefix := range sensitivePrefixes {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	return false
}
