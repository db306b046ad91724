//go:build !unix

package gguf

import (
	"fmt"
	"os"
)

func mmapFile(f *os.File, size int64) ([]byte, error) {
	return nil, fmt.Errorf("gguf: mmap not supported on this platform")
}

func munmapFile(data []byte) error {
	return nil
}
