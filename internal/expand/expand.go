package expand

import (
	"os"
	"regexp"
	"strings"
)

var re = regexp.MustCompile(`\$\{([a-zA-Z0-9_.-]+)(?::-([^}]*))?\}`)

// Expand replaces every ${key} in v with mapping(key). ${key:-fallback}
// yields fallback when mapping returns an empty string.
func Expand(v string, mapping func(string) string) string {
	return re.ReplaceAllStringFunc(v, func(s string) string {
		m := re.FindStringSubmatch(s)
		r := mapping(m[1])
		if r == "" {
			r = m[2]
		}
		return r
	})
}

// Env resolves keys of the form env.NAME against the process environment.
// Other keys expand to an empty string.
func Env(key string) string {
	if name, ok := strings.CutPrefix(key, "env."); ok {
		return os.Getenv(name)
	}
	return ""
}
