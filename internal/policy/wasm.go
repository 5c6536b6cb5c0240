package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WASMEngine evaluates policy inside an embedded, sandboxed bytecode module.
// Deny-by-default sandbox: no filesystem, no network, no ambient authority.
// The module reads the policy input as JSON on stdin and writes
// {"result":{"allow":bool,...}} to stdout, mirroring the remote wire shape.
type WASMEngine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	timeout  time.Duration
	logger   *slog.Logger
}

// NewWASM compiles the policy bytecode once; each Decide instantiates a fresh
// module so evaluations cannot observe each other.
func NewWASM(ctx context.Context, bytecode []byte, timeout time.Duration, logger *slog.Logger) (*WASMEngine, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, bytecode)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("compile policy module: %w", err)
	}
	return &WASMEngine{runtime: r, compiled: compiled, timeout: timeout, logger: logger}, nil
}

func (e *WASMEngine) Decide(ctx context.Context, input Input) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(decideRequest{Input: input})
	if err != nil {
		return Decision{}, fmt.Errorf("encode policy input: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName(""). // anonymous so concurrent instantiations don't collide
		WithStdin(bytes.NewReader(payload)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start")

	mod, err := e.runtime.InstantiateModule(ctx, e.compiled, cfg)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		// A clean exit(0) surfaces as *sys.ExitError. Traps, deadline hits,
		// and nonzero exits all deny. Policy evaluation never errors out of
		// the engine boundary.
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			e.logger.WarnContext(ctx, "policy module evaluation failed, denying",
				"error", err, "stderr", stderr.String())
			return Decision{Allow: false, Reason: ReasonUnavailable}, nil
		}
	}

	var decoded decideResponse
	if err := json.Unmarshal(stdout.Bytes(), &decoded); err != nil {
		e.logger.WarnContext(ctx, "policy module produced malformed output, denying", "error", err)
		return Decision{Allow: false, Reason: ReasonUnavailable}, nil
	}

	d := Decision{Allow: decoded.Result.Allow}
	if decoded.Result.Package != "" || decoded.Result.Rule != "" {
		d.Explain = &Explain{Package: decoded.Result.Package, Rule: decoded.Result.Rule}
	}
	return d, nil
}

// Close releases the runtime.
func (e *WASMEngine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
