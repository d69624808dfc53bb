package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	assert.Equal(t, "foo", Expand("${foo}", func(s string) string { return s }))
	assert.Equal(t, "a-b", Expand("${x}-${y}", lookup(map[string]string{"x": "a", "y": "b"})))
	assert.Equal(t, "no placeholders", Expand("no placeholders", func(string) string { return "x" }))
	assert.Equal(t, "fallback", Expand("${missing:-fallback}", func(string) string { return "" }))
	assert.Equal(t, "set", Expand("${present:-fallback}", func(string) string { return "set" }))
}

func TestEnv(t *testing.T) {
	t.Setenv("BADASS_TEST_HOST", "smtp.example.com")
	assert.Equal(t, "smtp.example.com:25", Expand("${env.BADASS_TEST_HOST}:25", Env))
	assert.Equal(t, "", Env("BADASS_TEST_HOST"))
	assert.Equal(t, "", Expand("${env.BADASS_TEST_UNSET_VARIABLE}", Env))
}

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}
