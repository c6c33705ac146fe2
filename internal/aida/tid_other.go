//go:build !linux

package aida

import (
	"bytes"
	"runtime"
	"strconv"
)

// threadID identifies the calling goroutine. Scopes lock their goroutine to
// an OS thread, so within a scope the goroutine id names the thread.
func threadID() int {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.Atoi(string(b))
	return id
}
