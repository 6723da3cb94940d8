package runconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseEnv(t *testing.T) {
	ev, err := parseEnv("FOO=bar")
	require.NoError(t, err)
	assert.Equal(t, EnvVar{Key: "FOO", Val: "bar"}, ev)
}

func Test_ParseEnv_AllowsEqualsInValue(t *testing.T) {
	ev, err := parseEnv("FOO=bar=baz")
	require.NoError(t, err)
	assert.Equal(t, EnvVar{Key: "FOO", Val: "bar=baz"}, ev)
}

func Test_ParseEnv_RejectsMissingEquals(t *testing.T) {
	_, err := parseEnv("FOO")
	assert.Error(t, err)
}

func Test_ParseEnv_RejectsEmptyKey(t *testing.T) {
	_, err := parseEnv("=bar")
	assert.Error(t, err)
}

func Test_MergeEnv_DefaultsOnly(t *testing.T) {
	out := mergeEnv(defaultEnvironment, nil)
	assert.Equal(t, []EnvVar{
		{Key: "PATH", Val: defaultEnvironment["PATH"]},
		{Key: "HOME", Val: defaultEnvironment["HOME"]},
		{Key: "TERM", Val: defaultEnvironment["TERM"]},
		{Key: "LANG", Val: defaultEnvironment["LANG"]},
	}, []EnvVar(out))
}

func Test_MergeEnv_UserOverridesAndExtras(t *testing.T) {
	out := mergeEnv(defaultEnvironment, []EnvVar{
		{Key: "HOME", Val: "/sandbox-home"},
		{Key: "ZZZ", Val: "1"},
		{Key: "AAA", Val: "2"},
	})

	var keys []string
	for _, e := range out {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"PATH", "HOME", "TERM", "LANG", "AAA", "ZZZ"}, keys)

	for _, e := range out {
		if e.Key == "HOME" {
			assert.Equal(t, "/sandbox-home", e.Val)
		}
	}
}

func Test_EnvVars_ToStringArray(t *testing.T) {
	env := EnvVars{{Key: "A", Val: "1"}, {Key: "B", Val: "2"}}
	assert.Equal(t, []string{"A=1", "B=2"}, env.ToStringArray())
}
