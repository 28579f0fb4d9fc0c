package main

import (
	"fmt"
	"plugin"

	"github.com/lunatic-solutions/lunatic-go/linker"
)

// loadPlugins opens each path as a Go plugin (--plugins / lunatic.toml's
// plugins) and calls its exported Register function to add host functions
// to l before any process is spawned. None of the example corpus's
// dependencies cover dynamic host-function loading for a wazero-hosted
// runtime, so this uses the standard library's plugin package rather than
// a third-party one; see DESIGN.md.
//
// A plugin module looks like:
//
//	package main
//	func Register(l *linker.Linker) error { ... }
func loadPlugins(l *linker.Linker, paths []string) error {
	for _, path := range paths {
		p, err := plugin.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		sym, err := p.Lookup("Register")
		if err != nil {
			return fmt.Errorf("%s: missing Register symbol: %w", path, err)
		}
		register, ok := sym.(func(*linker.Linker) error)
		if !ok {
			return fmt.Errorf("%s: Register has the wrong signature", path)
		}
		if err := register(l); err != nil {
			return fmt.Errorf("%s: Register: %w", path, err)
		}
	}
	return nil
}
