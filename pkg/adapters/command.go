package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/gantryctl/gantry/pkg/orchestrator"
)

// CommandAdapter shells out to user-supplied scripts. The apply command
// receives resolved inputs as GANTRY_INPUT_* environment variables and
// reports outputs as a JSON object on stdout. The verify command receives
// outputs as GANTRY_OUTPUT_* variables; exit code zero means ready.
type CommandAdapter struct {
	apply   string
	verify  string
	shell   string
	workDir string
	env     map[string]string
}

// NewCommandAdapter builds a command adapter from manifest configuration.
// Recognized keys: apply (required), verify, shell, workdir, and env.* keys
// passed through to both commands.
func NewCommandAdapter(config map[string]string) (*CommandAdapter, error) {
	applyCmd, ok := config["apply"]
	if !ok || applyCmd == "" {
		return nil, fmt.Errorf("command adapter: apply command is required")
	}

	shell := config["shell"]
	if shell == "" {
		shell = "/bin/sh"
	}

	env := make(map[string]string)
	for key, value := range config {
		if name, ok := strings.CutPrefix(key, "env."); ok {
			env[name] = value
		}
	}

	return &CommandAdapter{
		apply:   applyCmd,
		verify:  config["verify"],
		shell:   shell,
		workDir: config["workdir"],
		env:     env,
	}, nil
}

// Apply runs the apply command and parses its stdout as the output map.
// An empty stdout means the unit produces no outputs.
func (a *CommandAdapter) Apply(ctx context.Context, inputs map[string]string) (map[string]string, error) {
	stdout, stderr, err := a.run(ctx, a.apply, envVars("GANTRY_INPUT_", inputs))
	if err != nil {
		if stderr != "" {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr))
		}
		return nil, err
	}

	outputs := map[string]string{}
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return outputs, nil
	}

	if err := json.Unmarshal([]byte(trimmed), &outputs); err != nil {
		return nil, fmt.Errorf("apply command produced invalid output JSON: %w", err)
	}
	return outputs, nil
}

// Verify runs the verify command. A zero exit code reports ready; a non-zero
// exit code reports not ready and the gate keeps polling. A missing verify
// command reports ready immediately. Failures to start the command at all are
// permanent.
func (a *CommandAdapter) Verify(ctx context.Context, outputs map[string]string) (bool, error) {
	if a.verify == "" {
		return true, nil
	}

	_, _, err := a.run(ctx, a.verify, envVars("GANTRY_OUTPUT_", outputs))
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, orchestrator.Permanent(err)
}

// run executes command through the configured shell with extra environment.
func (a *CommandAdapter) run(ctx context.Context, command string, extraEnv []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, a.shell, "-c", command)
	if a.workDir != "" {
		cmd.Dir = a.workDir
	}

	cmd.Env = append(os.Environ(), extraEnv...)
	for key, value := range a.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, value))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// CommandProbe reads steady state from a user-supplied script. The script
// receives outputs as GANTRY_OUTPUT_* variables and prints one of the
// stability states on stdout, optionally followed by a detail message.
type CommandProbe struct {
	adapter *CommandAdapter
	observe string
}

// NewCommandProbe builds a command probe. Recognized keys: observe
// (required), shell, workdir, env.*.
func NewCommandProbe(config map[string]string) (*CommandProbe, error) {
	observeCmd, ok := config["observe"]
	if !ok || observeCmd == "" {
		return nil, fmt.Errorf("command probe: observe command is required")
	}

	cloned := make(map[string]string, len(config)+1)
	for key, value := range config {
		cloned[key] = value
	}
	cloned["apply"] = observeCmd // satisfies the adapter constructor; never run

	adapter, err := NewCommandAdapter(cloned)
	if err != nil {
		return nil, err
	}

	return &CommandProbe{adapter: adapter, observe: observeCmd}, nil
}

// Observe runs the observe command and parses its first stdout line as a
// stability state. Script failures are transient so the monitor keeps
// watching through flaky probes.
func (p *CommandProbe) Observe(ctx context.Context, outputs map[string]string) (orchestrator.Observation, error) {
	stdout, stderr, err := p.adapter.run(ctx, p.observe, envVars("GANTRY_OUTPUT_", outputs))
	if err != nil {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = err.Error()
		}
		return orchestrator.Observation{}, orchestrator.Transient(fmt.Errorf("observe command failed: %s", detail))
	}

	state, detail, _ := strings.Cut(strings.TrimSpace(stdout), " ")
	switch orchestrator.StabilityState(state) {
	case orchestrator.StabilityConverging, orchestrator.StabilityStable,
		orchestrator.StabilityRolledBack, orchestrator.StabilityDegraded:
		return orchestrator.Observation{
			State:  orchestrator.StabilityState(state),
			Detail: strings.TrimSpace(detail),
		}, nil
	default:
		return orchestrator.Observation{}, orchestrator.Permanent(
			fmt.Errorf("observe command reported unknown state %q", state))
	}
}

// envVars renders a map as prefixed KEY=value pairs. Keys are uppercased and
// non-alphanumeric characters become underscores.
func envVars(prefix string, values map[string]string) []string {
	env := make([]string, 0, len(values))
	for key, value := range values {
		env = append(env, fmt.Sprintf("%s%s=%s", prefix, sanitizeEnvKey(key), value))
	}
	return env
}

func sanitizeEnvKey(key string) string {
	upper := strings.ToUpper(key)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, upper)
}
