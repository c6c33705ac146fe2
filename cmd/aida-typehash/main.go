package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/orizon-lang/aida/internal/aida"
	"github.com/orizon-lang/aida/internal/cli"
)

var kinds = map[string]aida.HashKind{
	"type":   aida.HashType,
	"oneway": aida.HashOneway,
	"twoway": aida.HashTwoway,
	"sigcon": aida.HashSigcon,
}

func main() {
	var (
		kind    string
		version bool
		jsonOut bool
	)

	flag.StringVar(&kind, "kind", "type", "hash kind: type, oneway, twoway or sigcon")
	flag.BoolVar(&version, "version", false, "print version information and exit")
	flag.BoolVar(&jsonOut, "json", false, "print version information as JSON")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: aida-typehash [-kind k] [signature...]\n")
		fmt.Fprintf(os.Stderr, "reads one signature per line from stdin if none are given\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if version {
		cli.PrintVersion("aida-typehash", jsonOut)
		return
	}

	k, ok := kinds[strings.ToLower(kind)]
	if !ok {
		cli.ExitWithCode(2, "aida-typehash: unknown kind %q", kind)
	}

	if flag.NArg() > 0 {
		for _, sig := range flag.Args() {
			printHash(k, sig)
		}
		return
	}

	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if sig := strings.TrimSpace(sc.Text()); sig != "" && !strings.HasPrefix(sig, "#") {
			printHash(k, sig)
		}
	}
	if err := sc.Err(); err != nil {
		cli.ExitWithError("aida-typehash: %v", err)
	}
}

func printHash(k aida.HashKind, sig string) {
	h := aida.TypeHashFor(k, sig)
	fmt.Printf("0x%016x 0x%016x %s\n", h.Hi, h.Lo, sig)
}
