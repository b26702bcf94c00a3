// Package klog is the kernel's single diagnostic sink: boot-sequence and
// panic-adjacent messages only, never the syscall hot path.
package klog

import (
	"log"
	"os"
)

// L is the kernel log, microsecond-stamped like the teacher's own
// ad-hoc log.Printf calls (see ufs/ufs.go's BootMemFS).
var L = log.New(os.Stderr, "", log.Lmicroseconds)
