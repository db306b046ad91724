// Command gguf-dump prints a GGUF container's metadata and tensor
// descriptors without loading any tensor data, for inspecting a
// checkpoint before pointing the engine at it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/brineshade/ggstream/gguf"
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: gguf-dump <model.gguf>")
		os.Exit(1)
	}

	f, err := gguf.Open(flag.Arg(0), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gguf-dump: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	fmt.Printf("metadata (%d keys):\n", f.NumKeyValues())
	for _, kv := range f.KeyValues() {
		fmt.Printf("  %-40s %v\n", kv.Key, kv.Value.Any())
	}

	tensors := f.TensorInfos()
	fmt.Printf("\ntensors (%d):\n", len(tensors))
	for _, t := range tensors {
		fmt.Printf("  %-40s dtype=%-8s shape=%v offset=%d size=%d\n",
			t.Name, t.Dtype, t.Shape, t.Offset, t.Size)
	}
}
