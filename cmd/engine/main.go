// Command engine loads a GGUF checkpoint and generates text from a prompt,
// streaming transformer layers from disk one at a time rather than
// holding the whole model resident in memory.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/brineshade/ggstream/engine"
	"github.com/brineshade/ggstream/envconfig"
)

func main() {
	prompt := flag.String("prompt", "", "prompt text to generate from")
	maxTokens := flag.Int("max-tokens", 16, "number of tokens to generate")
	useMmap := flag.Bool("mmap", true, "memory-map the model file instead of reading through it")
	flag.Parse()

	slog.SetLogLoggerLevel(envconfig.LogLevel())

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: engine <model.gguf> [--prompt TEXT] [--max-tokens N]")
		os.Exit(1)
	}
	modelPath := flag.Arg(0)
	// Flags may also follow the model path, as in the usage line.
	flag.CommandLine.Parse(flag.Args()[1:])

	e, err := engine.Open(modelPath, engine.Config{
		PrefetchDepth: int(envconfig.PrefetchDepth()),
		UseMmap:       *useMmap,
		Debug:         envconfig.Debug(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: open: %v\n", err)
		os.Exit(1)
	}
	defer e.Close()

	e.SetPrompt(*prompt)
	result, err := e.Generate(*maxTokens)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: generate: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.Text)

	stats := e.Stats()
	slog.Debug("generation complete",
		"tokens", len(result.Tokens),
		"layer_loads", stats.LayerLoads,
		"layer_bytes_read", stats.LayerBytesRead,
		"prefetch_hits", stats.PrefetchHits,
		"prefetch_misses", stats.PrefetchMisses,
		"max_concurrent", stats.MaxConcurrent)
}
