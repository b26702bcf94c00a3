package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMin(t *testing.T) {
	require.Equal(t, 3, Min(3, 7))
	require.Equal(t, 3, Min(7, 3))
}

func TestRounddown(t *testing.T) {
	require.Equal(t, uint64(16), Rounddown(uint64(23), uint64(16)))
	require.Equal(t, uint64(16), Rounddown(uint64(16), uint64(16)))
}

func TestRoundup(t *testing.T) {
	require.Equal(t, uint64(32), Roundup(uint64(23), uint64(16)))
	require.Equal(t, uint64(16), Roundup(uint64(16), uint64(16)))
}
