package klog

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLWritesFormattedLines(t *testing.T) {
	var buf bytes.Buffer
	saved := L
	defer func() { L = saved }()
	L = log.New(&buf, "", 0)

	L.Printf("booted %d processes", 3)

	require.Contains(t, buf.String(), "booted 3 processes")
}
