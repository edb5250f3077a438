// Package wasmtime wires the Deployment Engine and Hot-Reload Engine
// collaborator interfaces to a real bytecodealliance/wasmtime-go runtime,
// grounded on the teacher's internal/policy.WASMEvaluator: one Store per
// instance, fuel metering instead of a wall-clock watchdog, and the same
// allocate/write/call/read memory dance for invoking guest exports.
package wasmtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytecodealliance/wasmtime-go/v3"

	"github.com/caxtonio/agentcore/internal/domain"
)

// instance is one running WASM module, store and exports bound together
// exactly like the teacher's WASMEvaluator.
type instance struct {
	store    *wasmtime.Store
	inst     *wasmtime.Instance
	memory   *wasmtime.Memory
	evaluate *wasmtime.Func // optional; present only if the module exports "evaluate"

	// preserveState/restoreState back hot-reload state carry-over
	// (spec.md §4.3 Graceful pipeline). Both optional: a module that
	// exports neither simply carries no state across a reload.
	preserveState *wasmtime.Func // () -> (ptr i32, len i32), present only if exported
	restoreState  *wasmtime.Func // (ptr i32, len i32), present only if exported

	memoryBytes uint64
	fuelBudget  uint64
}

// Host owns the wasmtime engine and every live instance, keyed by
// (agent, version) so the hot-reload engine can run more than one version
// of an agent concurrently.
type Host struct {
	engine *wasmtime.Engine

	mu        sync.Mutex
	instances map[instanceKey]*instance
}

type instanceKey struct {
	agent   domain.AgentID
	version domain.AgentVersion
}

// NewHost constructs a Host with bulk-memory and multi-memory enabled
// (matching the teacher's policy.WASMLoader config) and SIMD/threads left
// to whatever the validator already approved for the module.
func NewHost() *Host {
	cfg := wasmtime.NewConfig()
	cfg.SetWasmMultiMemory(true)
	cfg.SetWasmBulkMemory(true)
	cfg.SetWasmSIMD(true)
	return &Host{
		engine:    wasmtime.NewEngineWithConfig(cfg),
		instances: make(map[instanceKey]*instance),
	}
}

func (h *Host) instantiate(ctx context.Context, key instanceKey, wasmBytes []byte, resources domain.ResourceRequirements) (*instance, error) {
	module, err := wasmtime.NewModule(h.engine, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	store := wasmtime.NewStore(h.engine)
	if err := store.AddFuel(resources.FuelLimit); err != nil {
		return nil, fmt.Errorf("add fuel: %w", err)
	}

	linker := wasmtime.NewLinker(h.engine)
	if err := defineHostImports(linker); err != nil {
		return nil, fmt.Errorf("define host imports: %w", err)
	}

	inst, err := linker.Instantiate(store, module)
	if err != nil {
		return nil, fmt.Errorf("instantiate: %w", err)
	}

	ins := &instance{store: store, inst: inst, memoryBytes: resources.MemoryLimit, fuelBudget: resources.FuelLimit}
	if memExport := inst.GetExport(store, "memory"); memExport != nil {
		ins.memory = memExport.Memory()
	}
	if evalExport := inst.GetExport(store, "evaluate"); evalExport != nil {
		ins.evaluate = evalExport.Func()
	}
	if preserveExport := inst.GetExport(store, "preserve_state"); preserveExport != nil {
		ins.preserveState = preserveExport.Func()
	}
	if restoreExport := inst.GetExport(store, "restore_state"); restoreExport != nil {
		ins.restoreState = restoreExport.Func()
	}

	h.mu.Lock()
	h.instances[key] = ins
	h.mu.Unlock()
	return ins, nil
}

func (h *Host) stop(key instanceKey) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.instances, key)
}

func (h *Host) get(key instanceKey) (*instance, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ins, ok := h.instances[key]
	return ins, ok
}

// fuelRemaining reports how much of the instance's fuel budget is left,
// 0 if the instance is gone or fuel consumption can't be read.
func (ins *instance) fuelRemaining() uint64 {
	remaining, err := ins.store.FuelRemaining()
	if err != nil {
		return 0
	}
	return remaining
}

// preserve captures a module's in-flight state by calling its optional
// preserve_state export, grounded on the teacher's callEvaluate: the guest
// returns a (ptr, len) pair into its own linear memory that the host copies
// out before the instance is torn down. A module with no such export
// carries no state across a reload.
func (ins *instance) preserve() ([]byte, error) {
	if ins.preserveState == nil {
		return nil, nil
	}
	result, err := ins.preserveState.Call(ins.store)
	if err != nil {
		return nil, fmt.Errorf("call preserve_state: %w", err)
	}
	vals, ok := result.([]interface{})
	if !ok || len(vals) != 2 {
		return nil, fmt.Errorf("preserve_state: unexpected result shape")
	}
	ptr, _ := vals[0].(int32)
	length, _ := vals[1].(int32)
	if ins.memory == nil || length == 0 {
		return nil, nil
	}
	mem := ins.memory.UnsafeData(ins.store)
	data := make([]byte, length)
	copy(data, mem[ptr:ptr+length])
	return data, nil
}

// restore writes previously preserved state into this instance's memory and
// hands it to the optional restore_state export, the write half of the same
// allocate/write/call dance callEvaluate uses for evaluate's input.
func (ins *instance) restore(state []byte) error {
	if ins.restoreState == nil || len(state) == 0 {
		return nil
	}
	if ins.memory == nil {
		return fmt.Errorf("restore_state: module has no memory export")
	}
	ptr, err := ins.allocate(len(state))
	if err != nil {
		return fmt.Errorf("allocate restore buffer: %w", err)
	}
	mem := ins.memory.UnsafeData(ins.store)
	copy(mem[ptr:], state)
	if _, err := ins.restoreState.Call(ins.store, ptr, int32(len(state))); err != nil {
		return fmt.Errorf("call restore_state: %w", err)
	}
	return nil
}

// allocate calls the module's "allocate" export the same way the teacher's
// WASMEvaluator does for evaluate's input/output buffers.
func (ins *instance) allocate(size int) (int32, error) {
	allocExport := ins.inst.GetExport(ins.store, "allocate")
	if allocExport == nil {
		return 0, fmt.Errorf("allocate export not found")
	}
	result, err := allocExport.Func().Call(ins.store, int32(size))
	if err != nil {
		return 0, err
	}
	ptr, _ := result.(int32)
	return ptr, nil
}

// healthy runs a best-effort liveness check: the instance exists, its
// store hasn't exhausted fuel, and — when the module exports one — a
// zero-argument "health_check" export returns successfully.
func (ins *instance) healthy() bool {
	if ins.fuelRemaining() == 0 {
		return false
	}
	if export := ins.inst.GetExport(ins.store, "health_check"); export != nil {
		if fn := export.Func(); fn != nil {
			if _, err := fn.Call(ins.store); err != nil {
				return false
			}
		}
	}
	return true
}
