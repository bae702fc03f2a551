package builtin

import (
	"context"
	"math"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"obi.dev/obi"
)

func encodeWasmArg(ctx *obi.Context, name string, kind api.ValueType, value obi.Value, index int) (uint64, error) {
	number, ok := value.(*obi.Number)
	if !ok {
		return 0, ctx.Errorf(nil, "%s expects a number as argument %d, got %s.", name, index+1, value.Typename())
	}
	switch kind {
	case api.ValueTypeI32:
		return api.EncodeI32(int32(number.Data())), nil
	case api.ValueTypeI64:
		return api.EncodeI64(int64(number.Data())), nil
	case api.ValueTypeF32:
		return api.EncodeF32(float32(number.Data())), nil
	case api.ValueTypeF64:
		return api.EncodeF64(number.Data()), nil
	}
	return 0, ctx.Errorf(nil, "%s has a parameter of unsupported type %s.", name, api.ValueTypeName(kind))
}

func decodeWasmResult(kind api.ValueType, raw uint64) float64 {
	switch kind {
	case api.ValueTypeI32:
		return float64(api.DecodeI32(raw))
	case api.ValueTypeI64:
		return float64(int64(raw))
	case api.ValueTypeF32:
		return float64(api.DecodeF32(raw))
	case api.ValueTypeF64:
		return api.DecodeF64(raw)
	}
	return math.NaN()
}

func wasmFunction(ctx *obi.Context, instance api.Module, name string, definition api.FunctionDefinition) *obi.Builtin {
	params := definition.ParamTypes()
	results := definition.ResultTypes()
	function := instance.ExportedFunction(name)

	return ctx.NewBuiltin(name, len(params), func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		raw := make([]uint64, len(params))
		for i, kind := range params {
			encoded, err := encodeWasmArg(ctx, name, kind, args[i], i)
			if err != nil {
				return nil, err
			}
			raw[i] = encoded
		}
		returned, err := function.Call(context.Background(), raw...)
		if err != nil {
			return nil, ctx.Errorf(nil, "%s: %v", name, err)
		}
		if len(results) == 0 || len(returned) == 0 {
			return nil, nil
		}
		return ctx.NewNumber(decodeWasmResult(results[0], returned[0])), nil
	})
}

// load_wasm(bytes) instantiates a module with no imports. Exported functions
// become natives and exported memories become byte snapshots. The close entry
// releases the runtime and shadows any export of the same name.
func loadWasm(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
	binary, err := bytesArg(ctx, "load_wasm", args, 0)
	if err != nil {
		return nil, err
	}

	background := context.Background()
	runtime := wazero.NewRuntime(background)
	compiled, err := runtime.CompileModule(background, binary)
	if err != nil {
		runtime.Close(background)
		return nil, ctx.Errorf(nil, "load_wasm: %v", err)
	}
	instance, err := runtime.InstantiateModule(background, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		runtime.Close(background)
		return nil, ctx.Errorf(nil, "load_wasm: %v", err)
	}

	exports := ctx.NewTable()
	functions := compiled.ExportedFunctions()
	for _, name := range sortedKeys(functions) {
		exports.Set(ctx.NewString(name), wasmFunction(ctx, instance, name, functions[name]))
	}
	memories := compiled.ExportedMemories()
	for _, name := range sortedKeys(memories) {
		memory := instance.ExportedMemory(name)
		data, ok := memory.Read(0, memory.Size())
		if !ok {
			continue
		}
		exports.Set(ctx.NewString(name), ctx.NewBytes(append([]byte(nil), data...)))
	}
	closed := false
	exports.Set(ctx.NewString("close"), ctx.NewBuiltin("close", 0, func(ctx *obi.Context, args []obi.Value) (obi.Value, error) {
		if closed {
			return nil, nil
		}
		closed = true
		if err := runtime.Close(background); err != nil {
			return nil, ctx.Errorf(nil, "close: %v", err)
		}
		ctx.Logger.Debug("wasm module closed")
		return nil, nil
	}))
	ctx.Logger.Debug("wasm module loaded", "functions", len(functions), "memories", len(memories))
	return exports, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
