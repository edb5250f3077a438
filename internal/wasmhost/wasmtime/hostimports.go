package wasmtime

import (
	"fmt"
	"os"

	"github.com/bytecodealliance/wasmtime-go/v3"
)

// defineHostImports binds the "env" module every guest may import from:
// log(ptr, len) and get_env(key_ptr, key_len, out_ptr, out_max_len) -> i32,
// verbatim from the teacher's policy.WASMEvaluator.defineHostFunctions.
func defineHostImports(linker *wasmtime.Linker) error {
	logType := wasmtime.NewFuncType(
		[]*wasmtime.ValType{wasmtime.NewValType(wasmtime.KindI32), wasmtime.NewValType(wasmtime.KindI32)},
		[]*wasmtime.ValType{},
	)
	if err := linker.FuncNew("env", "log", logType, hostLog); err != nil {
		return err
	}

	getEnvType := wasmtime.NewFuncType(
		[]*wasmtime.ValType{
			wasmtime.NewValType(wasmtime.KindI32), wasmtime.NewValType(wasmtime.KindI32),
			wasmtime.NewValType(wasmtime.KindI32), wasmtime.NewValType(wasmtime.KindI32),
		},
		[]*wasmtime.ValType{wasmtime.NewValType(wasmtime.KindI32)},
	)
	return linker.FuncNew("env", "get_env", getEnvType, hostGetEnv)
}

func hostLog(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	ptr, length := args[0].I32(), args[1].I32()
	export := caller.GetExport("memory")
	if export == nil {
		return nil, wasmtime.NewTrap("no memory export")
	}
	mem := export.Memory().UnsafeData(caller)
	if int(ptr+length) > len(mem) {
		return nil, wasmtime.NewTrap("log: out of bounds")
	}
	fmt.Printf("[wasm] %s\n", string(mem[ptr:ptr+length]))
	return []wasmtime.Val{}, nil
}

func hostGetEnv(caller *wasmtime.Caller, args []wasmtime.Val) ([]wasmtime.Val, *wasmtime.Trap) {
	keyPtr, keyLen := args[0].I32(), args[1].I32()
	outPtr, outMax := args[2].I32(), args[3].I32()

	export := caller.GetExport("memory")
	if export == nil {
		return nil, wasmtime.NewTrap("no memory export")
	}
	mem := export.Memory().UnsafeData(caller)
	if int(keyPtr+keyLen) > len(mem) {
		return []wasmtime.Val{wasmtime.ValI32(-1)}, nil
	}
	key := string(mem[keyPtr : keyPtr+keyLen])

	value := os.Getenv(key)
	if value == "" || len(value) > int(outMax) {
		return []wasmtime.Val{wasmtime.ValI32(-1)}, nil
	}
	copy(mem[outPtr:], value)
	return []wasmtime.Val{wasmtime.ValI32(int32(len(value)))}, nil
}
