package bzperi

import (
	"fmt"
	"regexp"
	"strings"
)

var pathSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ObjectPath is a validated D-Bus object path: a non-empty sequence of
// ASCII segments joined by "/", always prefixed with "/". See spec.md
// §3.1/§4.A.
type ObjectPath string

// NewObjectPath validates a complete path string, e.g. "/com/bzperi".
func NewObjectPath(s string) (ObjectPath, error) {
	if s == "" || s[0] != '/' {
		return "", fmt.Errorf("%w: path must start with '/': %q", ErrInvalidPath, s)
	}
	if s == "/" {
		return ObjectPath(s), nil
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if !pathSegmentRE.MatchString(seg) {
			return "", fmt.Errorf("%w: bad segment %q in %q", ErrInvalidPath, seg, s)
		}
	}
	return ObjectPath(s), nil
}

// Append returns a new path with segment appended as a final element.
// It fails with ErrInvalidPath if segment contains "/" or any character
// outside [A-Za-z0-9_].
func (p ObjectPath) Append(segment string) (ObjectPath, error) {
	if !pathSegmentRE.MatchString(segment) {
		return "", fmt.Errorf("%w: bad segment %q", ErrInvalidPath, segment)
	}
	if p == "/" {
		return ObjectPath("/" + segment), nil
	}
	return ObjectPath(string(p) + "/" + segment), nil
}

// String implements fmt.Stringer.
func (p ObjectPath) String() string { return string(p) }

// Base returns the final path segment, or "" for the root path.
func (p ObjectPath) Base() string {
	s := string(p)
	if s == "/" {
		return ""
	}
	i := strings.LastIndexByte(s, '/')
	return s[i+1:]
}

// derivedBusName implements spec.md §3.2/§8.1: "com." + serviceName, with
// the service name's dots preserved.
func derivedBusName(serviceName string) string {
	return "com." + serviceName
}

// derivedRootPath implements spec.md §3.2/§8.1: "/com/" + serviceName with
// '.' replaced by '/'.
func derivedRootPath(serviceName string) (ObjectPath, error) {
	return NewObjectPath("/com/" + strings.ReplaceAll(serviceName, ".", "/"))
}
