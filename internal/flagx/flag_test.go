package flagx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterArgs_SeparateValue(t *testing.T) {
	got := FilterArgs([]string{"-n", "office-mac", "-x", "ignored"}, []string{"-n"})
	require.Equal(t, []string{"-n", "office-mac"}, got)
}

func TestFilterArgs_EqualsForm(t *testing.T) {
	got := FilterArgs([]string{"--name=office-mac", "--other=1"}, []string{"--name"})
	require.Equal(t, []string{"--name=office-mac"}, got)
}

func TestFilterArgs_FlagWithoutValue(t *testing.T) {
	got := FilterArgs([]string{"-approve", "-n", "x"}, []string{"-approve"})
	require.Equal(t, []string{"-approve"}, got)
}

func TestFilterArgs_NoMatches(t *testing.T) {
	got := FilterArgs([]string{"-a", "b"}, []string{"-z"})
	require.Empty(t, got)
}
