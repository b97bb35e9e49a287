// Command luadec is the thin CLI entry point over package luadec: read a
// compiled Lua 5.1 chunk, print its recovered source to stdout.
//
// A separate run function so deferred cleanup (closing the cache) still
// executes on an error path, which os.Exit would otherwise skip.
package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"luadec"
	"luadec/cache"
	"luadec/internal/diag"
)

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verbose := flag.Bool("verbose", false, "print diagnostics to stderr")
	cachePath := flag.String("cache", "", "path to a SQLite cache database (empty disables caching)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: luadec [flags] <chunk.luac>\n\n")
		fmt.Fprintf(os.Stderr, "Decompiles a Lua 5.1 bytecode chunk to source, printed on stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("expected 1 argument, got %d", flag.NArg())
	}

	reporter := diag.NewReporter(*verbose)
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var store *cache.Store
	hash := contentHash(data)
	if *cachePath != "" {
		store, err = cache.Open(*cachePath)
		if err != nil {
			return err
		}
		defer store.Close()

		if source, diagsText, ok, err := store.Get(hash); err != nil {
			return err
		} else if ok {
			reporter.Verbose("cache hit for %s", hash)
			if *verbose && diagsText != "" {
				fmt.Fprintln(os.Stderr, diagsText)
			}
			fmt.Println(source)
			return nil
		}
	}

	reporter.Log("decompiling %s ...", path)
	source, diags, err := luadec.Decompile(data)
	if err != nil {
		return fmt.Errorf("decompiling %s: %w", path, err)
	}

	var diagsText string
	for _, d := range diags {
		reporter.Verbose("%s", d)
		diagsText += d.String() + "\n"
	}

	if store != nil {
		if err := store.Put(hash, source, diagsText); err != nil {
			return err
		}
	}

	fmt.Println(source)
	reporter.Log("done, %d diagnostic(s)", len(diags))
	return nil
}
