package avctl

import (
	"fmt"
	"strconv"
	"strings"
)

// descriptor sources are handed to engines as "pipe:<fd>", so hosts can't
// use that scheme directly
const pipeScheme = "pipe:"

// streaming schemes that engines only understand through a related
// transport alias
var schemeAliases = []struct{ from, to string }{
	{"mms://", "mmsh://"},
}

// BuildHeaders concatenates the given header pairs as "Key: Value\r\n" in
// input order. Both slices must have the same length.
func BuildHeaders(keys, values []string) (string, error) {
	if len(keys) != len(values) {
		return "", fmt.Errorf("%w: %d header keys but %d values", ErrInvalidArgument, len(keys), len(values))
	}

	var sb strings.Builder
	for i, key := range keys {
		sb.WriteString(key)
		sb.WriteString(": ")
		sb.WriteString(values[i])
		sb.WriteString("\r\n")
	}
	return sb.String(), nil
}

// validateURI rejects empty uris and uris using a reserved scheme.
func validateURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("%w: empty uri", ErrInvalidArgument)
	}
	if hasPrefixFold(uri, pipeScheme) {
		return fmt.Errorf("%w: scheme %q is reserved for descriptor sources", ErrInvalidArgument, pipeScheme)
	}
	return nil
}

// rewriteSchemeAlias returns uri with its scheme replaced by the transport
// alias engines expect, or uri unchanged if no alias applies.
func rewriteSchemeAlias(uri string) string {
	for _, alias := range schemeAliases {
		if hasPrefixFold(uri, alias.from) {
			return alias.to + uri[len(alias.from):]
		}
	}
	return uri
}

// descriptorURI returns the engine uri for an already duplicated fd.
func descriptorURI(fd int) string {
	return pipeScheme + strconv.Itoa(fd)
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
