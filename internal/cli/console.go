// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	minWidth     = 40
)

// console describes a command's output stream.
type console struct {
	fd    int
	tty   bool
	color bool
}

// consoleFor inspects w. Writers that are not files, such as test buffers,
// are treated as plain pipes.
func consoleFor(w io.Writer) console {
	c := console{fd: -1}
	if f, ok := w.(*os.File); ok {
		c.fd = int(f.Fd())
		c.tty = term.IsTerminal(c.fd)
	}
	switch {
	case os.Getenv("NO_COLOR") != "":
		c.color = false
	case os.Getenv("FORCE_COLOR") != "":
		c.color = true
	default:
		c.color = c.tty
	}
	return c
}

var (
	stdoutOnce sync.Once
	stdout     console
)

// stdoutConsole is consoleFor(os.Stdout), computed once.
func stdoutConsole() console {
	stdoutOnce.Do(func() { stdout = consoleFor(os.Stdout) })
	return stdout
}

// width is the terminal width, clamped to minWidth, or defaultWidth when
// the stream is not a terminal.
func (c console) width() int {
	if !c.tty {
		return defaultWidth
	}
	w, _, err := term.GetSize(c.fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return max(w, minWidth)
}

func (c console) profile() termenv.Profile {
	if !c.color {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}

// stdinIsTerminal reports whether prompts can be answered.
func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// promptPassword reads a secret from stdin without echo, writing the
// prompt to w.
func promptPassword(w io.Writer, prompt string) (string, error) {
	if !stdinIsTerminal() {
		return "", fmt.Errorf("stdin is not a terminal; cannot prompt for %s", strings.TrimSpace(prompt))
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
