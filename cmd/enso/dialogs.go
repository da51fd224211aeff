package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/RCOEM-Google-DSC/enso/batch"
)

// terminalDialogs answers the save and folder dialogs from flags, or by
// prompting on the terminal. An empty answer to the folder prompt, a "-"
// or end of input cancels.
type terminalDialogs struct {
	in     *bufio.Reader
	prompt io.Writer

	// Set from flags; used without prompting.
	savePath string
	folder   string
}

func newTerminalDialogs(in io.Reader, prompt io.Writer) *terminalDialogs {
	return &terminalDialogs{in: bufio.NewReader(in), prompt: prompt}
}

// SaveFile returns the --out path, joined with suggested when it names a
// directory. Otherwise it prompts, defaulting to suggested in the working
// directory.
func (d *terminalDialogs) SaveFile(ctx context.Context, suggested string) (string, error) {
	if d.savePath != "" {
		if info, err := os.Stat(d.savePath); err == nil && info.IsDir() {
			return filepath.Join(d.savePath, suggested), nil
		}
		return d.savePath, nil
	}
	answer, err := d.ask(ctx, fmt.Sprintf("Save certificate as [%s]: ", suggested))
	if err != nil {
		return "", err
	}
	if answer == "" {
		return suggested, nil
	}
	return answer, nil
}

// ChooseFolder returns the --folder value or prompts for one.
func (d *terminalDialogs) ChooseFolder(ctx context.Context) (string, error) {
	if d.folder != "" {
		return d.folder, nil
	}
	answer, err := d.ask(ctx, "Output folder: ")
	if err != nil {
		return "", err
	}
	if answer == "" {
		return "", batch.ErrCancelled
	}
	return answer, nil
}

func (d *terminalDialogs) ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", batch.ErrCancelled
	}
	fmt.Fprint(d.prompt, question)
	line, err := d.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", batch.ErrCancelled
	}
	line = strings.TrimSpace(line)
	if line == "-" {
		return "", batch.ErrCancelled
	}
	return line, nil
}

// execViewer opens files with an external program. An empty command uses
// the platform opener.
type execViewer struct {
	command  string
	disabled bool
}

func (v *execViewer) Open(ctx context.Context, path string) error {
	if v.disabled {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args := v.argv(runtime.GOOS)
	// Not tied to ctx: the viewer outlives the command.
	cmd := exec.Command(name, append(args, path)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	go cmd.Wait() //nolint:errcheck
	return nil
}

func (v *execViewer) argv(goos string) (string, []string) {
	if fields := strings.Fields(v.command); len(fields) > 0 {
		return fields[0], fields[1:]
	}
	switch goos {
	case "darwin":
		return "open", nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}
	}
	return "xdg-open", nil
}
