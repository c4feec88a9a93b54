package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// lineReader is shared by every prompt in one invocation so buffered input
// isn't lost between questions.
type lineReader struct {
	src io.Reader
	r   *bufio.Reader
}

func (l *lineReader) readLine(in io.Reader) (string, error) {
	if l.r == nil || l.src != in {
		l.src = in
		l.r = bufio.NewReader(in)
	}
	s, err := l.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (a *app) prompt(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label+": ")
	s, err := a.lines.readLine(cmd.InOrStdin())
	return strings.TrimSpace(s), err
}

// promptSecret hides input on a terminal and falls back to a plain line
// read when stdin is piped.
func (a *app) promptSecret(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label+": ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	return a.lines.readLine(cmd.InOrStdin())
}

// interactive reports whether stdout is a terminal a TUI can take over.
func interactive(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
