package engine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// InstantiateWASI instantiates the wasi_snapshot_preview1 host module that
// wazero ships built in. Engine.EnsureWASI calls it once per runtime, and
// every process holding the "wasi_snapshot_preview1" capability imports from
// that one instance; Lunatic does not reimplement WASI, it delegates to
// wazero's preview1 implementation.
func InstantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder("wasi_snapshot_preview1")
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)
	return builder.Instantiate(ctx)
}
