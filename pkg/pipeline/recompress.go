package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const pathPlaceholder = "{path}"

// CommandRecompressor runs an external image tool over a saved file. Each
// "{path}" in the argv template is replaced by the file path.
type CommandRecompressor struct {
	argv []string
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandRecompressor returns nil for an empty template
func NewCommandRecompressor(argv []string) *CommandRecompressor {
	if len(argv) == 0 {
		return nil
	}
	return &CommandRecompressor{argv: argv, run: combinedOutput}
}

func combinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (r *CommandRecompressor) Recompress(ctx context.Context, path string) error {
	args := make([]string, len(r.argv))
	for i, a := range r.argv {
		args[i] = strings.ReplaceAll(a, pathPlaceholder, path)
	}
	out, err := r.run(ctx, args[0], args[1:]...)
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}
