package render

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pumlbook/pkg/errors"
)

// DefaultCommand is the PlantUML executable looked up on PATH.
const DefaultCommand = "plantuml"

// sourceName is the file name used for diagram source in file mode.
const sourceName = "diagram"

// PlantUML renders diagrams by running the plantuml executable.
//
// In pipe mode the source is written to the process's stdin and the image is
// read from its stdout. Otherwise the source is written to a file in the
// scratch directory and plantuml names the output itself: "<name>.<format>"
// for diagrams that start with "@startuml <name>", "diagram.<format>"
// otherwise.
//
// The process is not bound to ctx: once started, a render runs to
// completion.
type PlantUML struct {
	// Command is the executable and any leading arguments,
	// e.g. ["java", "-jar", "plantuml.jar"].
	Command []string
	// Pipe selects stdin/stdout mode.
	Pipe bool
}

// NewPlantUML parses a command line such as "java -jar plantuml.jar".
// An empty command selects [DefaultCommand].
func NewPlantUML(command string, pipe bool) *PlantUML {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = []string{DefaultCommand}
	}
	return &PlantUML{Command: fields, Pipe: pipe}
}

// Render implements Gateway.
func (p *PlantUML) Render(ctx context.Context, t Target, dir string) (string, error) {
	if _, err := exec.LookPath(p.argv()[0]); err != nil {
		return "", errors.Wrap(errors.ErrCodeRender, err,
			"%s not found. Install PlantUML (https://plantuml.com/starting) or set the command option", p.argv()[0])
	}

	if p.Pipe {
		return p.renderPipe(ctx, t, dir)
	}
	return p.renderFile(ctx, t, dir)
}

func (p *PlantUML) renderPipe(ctx context.Context, t Target, dir string) (string, error) {
	out := filepath.Join(dir, sourceName+"."+t.Format)
	f, err := os.Create(out)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create %s", out)
	}
	defer f.Close()

	cmd := p.command(t.Format, "-pipe")
	cmd.Stdin = strings.NewReader(t.Content)
	cmd.Stdout = f

	if err := p.run(ctx, cmd, t); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "write %s", out)
	}
	return out, nil
}

func (p *PlantUML) renderFile(ctx context.Context, t Target, dir string) (string, error) {
	src := filepath.Join(dir, sourceName+".puml")
	if err := os.WriteFile(src, []byte(t.Content), 0o644); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "write %s", src)
	}

	cmd := p.command(t.Format, src)
	cmd.Dir = dir
	if err := p.run(ctx, cmd, t); err != nil {
		return "", err
	}
	return producedFile(dir, t)
}

// argv is Command, or [DefaultCommand] when Command is empty.
func (p *PlantUML) argv() []string {
	if len(p.Command) == 0 {
		return []string{DefaultCommand}
	}
	return p.Command
}

func (p *PlantUML) command(format string, args ...string) *exec.Cmd {
	base := p.argv()
	argv := append([]string{}, base[1:]...)
	argv = append(argv, "-t"+format, "-nometadata")
	argv = append(argv, args...)
	return exec.Command(base[0], argv...)
}

func (p *PlantUML) run(ctx context.Context, cmd *exec.Cmd, t Target) error {
	logger := log.FromContext(ctx)
	logger.Debug("running renderer", "id", t.ID, "cmd", strings.Join(cmd.Args, " "))

	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(errBuf.String())
		if msg == "" {
			msg = "no output on stderr"
		}
		return errors.Wrap(errors.ErrCodeRender, err, "%s: %s", filepath.Base(p.argv()[0]), msg)
	}
	return nil
}

// producedFile finds the image plantuml wrote in file mode. Only files
// directly inside dir are considered: a name that is not a plain file name
// falls back to the search.
func producedFile(dir string, t Target) (string, error) {
	stem := sourceName
	if t.Name != "" {
		stem = t.Name
	}
	if !plainName(stem) {
		stem = sourceName
	}
	want := filepath.Join(dir, stem+"."+t.Format)
	if _, err := os.Stat(want); err == nil {
		return want, nil
	}

	// Fall back to the only image of the right type, if there is exactly one.
	matches, _ := filepath.Glob(filepath.Join(dir, "*."+t.Format))
	if len(matches) == 1 {
		return matches[0], nil
	}
	return "", errors.New(errors.ErrCodeArtifactMissing,
		"renderer succeeded but %s was not produced (found %d %s files)", filepath.Base(want), len(matches), t.Format)
}

func plainName(s string) bool {
	return filepath.IsLocal(s) && !strings.ContainsAny(s, `/\`)
}

// String describes the command line for logs.
func (p *PlantUML) String() string {
	mode := "file"
	if p.Pipe {
		mode = "pipe"
	}
	return fmt.Sprintf("%s (%s mode)", strings.Join(p.argv(), " "), mode)
}
