package main

import (
	"flag"
	"strings"
)

// cliOptions holds the parsed command-line flags from spec 6's CLI
// surface, before merging with any lunatic.toml found alongside the
// entry module.
type cliOptions struct {
	noEntry     bool
	nodeAddr    string
	nodeName    string
	peerAddr    string
	plugins     []string
	dirs        []string
	interactive bool
}

// csvFlag accumulates comma-separated values across repeated uses of the
// same flag, matching the rest of the module's CLI-flag texture (the
// teacher's -env/-argv/-preopens flags all took comma lists).
type csvFlag struct {
	values *[]string
}

func (f csvFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

func (f csvFlag) Set(s string) error {
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			*f.values = append(*f.values, part)
		}
	}
	return nil
}

func newFlagSet() (*flag.FlagSet, *cliOptions) {
	opts := &cliOptions{}
	fs := flag.NewFlagSet("lunatic", flag.ContinueOnError)
	fs.BoolVar(&opts.noEntry, "no-entry", false, "do not call _start; block forever (node mode)")
	fs.StringVar(&opts.nodeAddr, "node", "", "bind as a distributed node at this multiaddr")
	fs.StringVar(&opts.nodeName, "node-name", "", "name shown in this node's startup output (not sent to peers)")
	fs.StringVar(&opts.peerAddr, "peer", "", "connect to an initial peer multiaddr")
	fs.Var(csvFlag{&opts.plugins}, "plugins", "load dynamic host-function extensions (path1,path2)")
	fs.Var(csvFlag{&opts.dirs}, "dir", "preopen a directory for WASI (host[:guest])")
	fs.BoolVar(&opts.interactive, "interactive", false, "attach a live process/mailbox monitor while the module runs")
	fs.BoolVar(&opts.interactive, "i", false, "shorthand for -interactive")
	return fs, opts
}
