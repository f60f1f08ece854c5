package cellbridge

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRules = "../../pkg/rules/testdata/rules.xml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestRulesCheck(t *testing.T) {
	out, err := execute(t, "rules", "check", testRules)
	require.NoError(t, err)
	assert.Contains(t, out, "action=route")
	assert.Contains(t, out, "5 rules ok")

	_, err = execute(t, "rules", "check", "../../pkg/rules/testdata/broken.xml")
	assert.Error(t, err)
}

func TestRulesMatch(t *testing.T) {
	type result struct {
		Excluded bool     `json:"excluded"`
		Topics   []string `json:"topics"`
	}

	out, err := execute(t, "rules", "match", testRules, "-t", "MyTable", "-f", "data", "-q", "public")
	require.NoError(t, err)
	var got result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Excluded)
	assert.Equal(t, []string{"foo"}, got.Topics)

	out, err = execute(t, "rules", "match", testRules, "-t", "default:MyTable", "-f", "data", "-q", "secret")
	require.NoError(t, err)
	got = result{}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Excluded)
	assert.Empty(t, got.Topics)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = newLogger("none")
	require.NoError(t, err)

	_, err = newLogger("loud")
	assert.Error(t, err)
}
