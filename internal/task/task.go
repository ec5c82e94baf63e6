// Package task implements the worker tasks: normalize the user
// configuration, build one tool invocation per input file, run it to
// completion and assemble the result envelope.
package task

import (
	"context"
	"fmt"
	"os"

	"github.com/openrelik/openrelik-worker-dissect/internal/artifact"
	"github.com/openrelik/openrelik-worker-dissect/internal/dissect"
	"github.com/openrelik/openrelik-worker-dissect/internal/logger"
	"github.com/openrelik/openrelik-worker-dissect/internal/proc"
)

// profile is one tool invocation mode. The three registered tasks share a
// single execution skeleton and differ only in their profile.
type profile interface {
	// name is the routing name the task registers under.
	name() string

	// tool is the binary whose version is reported in the result metadata.
	tool() string

	// metadata renders the registration record; catalog feeds plugin
	// autocomplete items where the profile uses them.
	metadata(catalog []string) Metadata

	// usesPlugins reports whether the profile selects from the plugin
	// catalog, in which case the catalog must be discovered before
	// configuration is normalized.
	usesPlugins() bool

	// expectsOutput reports whether a successful run must produce output
	// files; producing none is then an ErrNoOutput failure.
	expectsOutput() bool

	// prepare validates invocation-wide requirements once per task
	// invocation, before any process is spawned.
	prepare(set *dissect.Settings) error

	// build produces the command for one input file, plus the output
	// artifact its stdout streams to, if the profile writes one.
	build(set *dissect.Settings, in InputFile, outputDir string) (dissect.CommandSpec, *artifact.OutputFile, error)
}

// Deps bundles the collaborators shared by all tasks.
type Deps struct {
	Runner proc.Runner
	Tools  *dissect.Toolset
	Log    logger.Logger
}

// Task is one registered unit of orchestrated work: it accepts input files
// and configuration and returns a result envelope.
type Task struct {
	profile profile
	deps    Deps
}

func newTask(p profile, d Deps) *Task {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Task{profile: p, deps: d}
}

// Name returns the task's routing name.
func (t *Task) Name() string { return t.profile.name() }

// Metadata returns the registration record presented to the core system.
func (t *Task) Metadata(ctx context.Context) (Metadata, error) {
	var catalog []string
	if t.profile.usesPlugins() {
		var err error
		catalog, err = t.deps.Tools.Plugins(ctx)
		if err != nil {
			return Metadata{}, err
		}
	}
	return t.profile.metadata(catalog), nil
}

// Run processes one task invocation: input files are handled strictly
// sequentially, in input order, one blocking child process at a time. The
// first tool failure aborts the remaining files.
func (t *Task) Run(ctx context.Context, req *Request) (*Result, error) {
	log := t.deps.Log.With("task", t.Name(), "workflow_id", req.WorkflowID)

	inputs, err := req.ResolveInputs()
	if err != nil {
		return nil, err
	}

	var catalog []string
	if t.profile.usesPlugins() {
		catalog, err = t.deps.Tools.Plugins(ctx)
		if err != nil {
			return nil, err
		}
	}

	set, err := dissect.NormalizeConfig(req.TaskConfig, catalog)
	if err != nil {
		return nil, err
	}
	if err := t.profile.prepare(set); err != nil {
		return nil, err
	}

	outputs := []artifact.OutputFile{}
	var commands []string
	for _, in := range inputs {
		spec, out, err := t.profile.build(set, in, req.OutputPath)
		if err != nil {
			return nil, err
		}
		log.Info("running tool", "command", spec.String())
		if err := t.runOne(ctx, spec, out); err != nil {
			log.Error("tool failed", "command", spec.String(), "error", err)
			return nil, err
		}
		commands = append(commands, spec.String())
		if out != nil {
			outputs = append(outputs, *out)
		}
	}

	if t.profile.expectsOutput() && len(outputs) == 0 {
		return nil, fmt.Errorf("%w by %s", ErrNoOutput, t.Name())
	}
	log.Info("task finished", "output_files", len(outputs))

	version, err := t.deps.Tools.Version(ctx, t.profile.tool())
	if err != nil {
		log.Warn("tool version probe failed", "tool", t.profile.tool(), "error", err)
	}

	result := &Result{
		OutputFiles: outputs,
		WorkflowID:  req.WorkflowID,
		Commands:    commands,
		Meta:        map[string]string{"tool_version": version},
	}
	if len(commands) > 0 {
		result.Command = commands[len(commands)-1]
	}
	return result, nil
}

// runOne executes a single built command, streaming stdout into the
// output artifact when the profile allocated one.
func (t *Task) runOne(ctx context.Context, spec dissect.CommandSpec, out *artifact.OutputFile) error {
	if out == nil {
		_, err := t.deps.Runner.Run(ctx, spec.Args, nil)
		return err
	}
	f, err := os.Create(out.Path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	_, runErr := t.deps.Runner.Run(ctx, spec.Args, f)
	if closeErr := f.Close(); closeErr != nil && runErr == nil {
		return fmt.Errorf("close output file: %w", closeErr)
	}
	return runErr
}
