package dissect

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/openrelik/openrelik-worker-dissect/internal/proc"
)

// Toolset holds process-wide, read-only metadata about the installed
// Dissect tools: version strings and the plugin catalog. Both are probed
// lazily, exactly once, and cached for the life of the process. The
// runner is injected so tests never spawn real subprocesses.
type Toolset struct {
	runner proc.Runner

	mu       sync.Mutex
	versions map[string]string
	catalog  []string
	probed   bool
}

// NewToolset creates a Toolset backed by the given runner.
func NewToolset(runner proc.Runner) *Toolset {
	return &Toolset{
		runner:   runner,
		versions: make(map[string]string),
	}
}

// Version returns the version string of the given tool binary, probing it
// with --version on first use.
func (t *Toolset) Version(ctx context.Context, tool string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.versions[tool]; ok {
		return v, nil
	}
	res, err := t.runner.Run(ctx, []string{tool, "--version"}, nil)
	if err != nil {
		return "", fmt.Errorf("probe %s version: %w", tool, err)
	}
	v := strings.TrimSpace(string(res.Stdout))
	t.versions[tool] = v
	return v, nil
}

// Plugins returns the discovered plugin catalog, sorted. The catalog is
// listed by target-query on first use and cached.
func (t *Toolset) Plugins(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.probed {
		return t.catalog, nil
	}
	res, err := t.runner.Run(ctx, []string{TargetQueryTool, "--list"}, nil)
	if err != nil {
		return nil, fmt.Errorf("discover plugin catalog: %w", err)
	}
	t.catalog = parsePluginList(res.Stdout)
	t.probed = true
	return t.catalog, nil
}

// parsePluginList extracts plugin function names from target-query --list
// output. The listing is a tree of namespaces ending in a colon with the
// runnable functions indented beneath them; a function line starts with
// the name, optionally followed by a description.
func parsePluginList(out []byte) []string {
	seen := make(map[string]struct{})
	for _, line := range strings.Split(string(out), "\n") {
		name, ok := pluginName(line)
		if !ok {
			continue
		}
		seen[name] = struct{}{}
	}
	plugins := make([]string, 0, len(seen))
	for name := range seen {
		plugins = append(plugins, name)
	}
	sort.Strings(plugins)
	return plugins
}

func pluginName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasSuffix(trimmed, ":") {
		return "", false
	}
	name := strings.Fields(trimmed)[0]
	// Namespace headers and prose lines are not plugin functions.
	if !isPluginToken(name) {
		return "", false
	}
	return name, true
}

// isPluginToken reports whether s looks like a plugin function name:
// lowercase identifiers joined by dots or underscores.
func isPluginToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.' || r == '_':
		default:
			return false
		}
	}
	return true
}
