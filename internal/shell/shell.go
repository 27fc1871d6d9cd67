// Package shell is the interactive SQL console over the warehouse.
//
// On a terminal it runs a prompt with completion of table names, keywords
// and dot commands. Otherwise it reads ';'-terminated statements from the
// input, which makes it scriptable:
//
//	echo "SELECT count(*) FROM silver.logs_enriched;" | medallion shell
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/xtxerr/medallion/internal/errors"
	"github.com/xtxerr/medallion/internal/query"
	"github.com/xtxerr/medallion/internal/schema"
	"github.com/xtxerr/medallion/internal/warehouse"
)

// Dot commands.
const (
	cmdTables   = ".tables"
	cmdInsights = ".insights"
	cmdHelp     = ".help"
	cmdQuit     = ".quit"
)

var keywords = []string{
	"SELECT", "FROM", "WHERE", "GROUP BY", "ORDER BY", "LIMIT", "COUNT(*)",
	"DESC", "ASC", "AND", "OR", "JOIN", "ON", "AS", "DISTINCT",
}

// errQuit ends a session.
var errQuit = errors.New("quit")

// Shell executes statements against a store.
type Shell struct {
	store warehouse.Store
	out   io.Writer
}

// New creates a Shell writing results to out.
func New(store warehouse.Store, out io.Writer) *Shell {
	return &Shell{store: store, out: out}
}

// Run starts an interactive prompt when in is a terminal and reads a script
// from in otherwise.
func (s *Shell) Run(ctx context.Context, in *os.File) error {
	if term.IsTerminal(int(in.Fd())) {
		s.Interactive(ctx)
		return nil
	}
	return s.RunScript(ctx, in)
}

// Exec runs one statement or dot command.
func (s *Shell) Exec(ctx context.Context, stmt string) error {
	stmt = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
	switch strings.ToLower(stmt) {
	case "":
		return nil
	case cmdQuit, "exit", "quit":
		return errQuit
	case cmdHelp:
		fmt.Fprintln(s.out, "statements end with ';'. commands: .tables .insights .help .quit")
		return nil
	case cmdTables:
		counts, err := query.Verify(ctx, s.store)
		if err != nil {
			return err
		}
		query.RenderCounts(s.out, counts)
		return nil
	case cmdInsights:
		r, err := query.Insights(ctx, s.store, query.DefaultTop)
		if err != nil {
			return err
		}
		r.Render(s.out)
		return nil
	}

	res, err := query.Exec(ctx, s.store, stmt)
	if err != nil {
		return err
	}
	query.RenderResult(s.out, res)
	return nil
}

// RunScript executes ';'-terminated statements read from r. Dot commands
// are complete on their own line. The first failing statement stops the
// script.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var buf strings.Builder
	flush := func() error {
		stmt := buf.String()
		buf.Reset()
		if err := s.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "statement %q", strings.TrimSpace(stmt))
		}
		return nil
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			if err := s.Exec(ctx, line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasSuffix(line, ";") {
			if err := flush(); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				return err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(buf.String()) != "" {
		if err := flush(); err != nil && !errors.Is(err, errQuit) {
			return err
		}
	}
	return nil
}

// Interactive runs the prompt until .quit or EOF. Errors are printed and
// the session continues.
func (s *Shell) Interactive(ctx context.Context) {
	fmt.Fprintln(s.out, "medallion shell on", s.store.Driver(), "- type .help")

	var buf strings.Builder
	executor := func(line string) {
		line = strings.TrimSpace(line)
		if buf.Len() == 0 && strings.HasPrefix(line, ".") {
			s.report(ctx, line)
			return
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
		if strings.HasSuffix(line, ";") {
			stmt := buf.String()
			buf.Reset()
			s.report(ctx, stmt)
		}
	}

	prompt.New(executor, Complete,
		prompt.OptionPrefix("medallion> "),
		prompt.OptionTitle("medallion"),
		prompt.OptionLivePrefix(func() (string, bool) {
			if buf.Len() > 0 {
				return "      ...> ", true
			}
			return "", false
		}),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			in = strings.ToLower(strings.TrimSpace(in))
			return breakline && (in == cmdQuit || in == "exit" || in == "quit")
		}),
	).Run()
}

func (s *Shell) report(ctx context.Context, stmt string) {
	if err := s.Exec(ctx, stmt); err != nil && !errors.Is(err, errQuit) {
		fmt.Fprintln(s.out, "error:", err)
	}
}

// Complete suggests table names, keywords and dot commands for the word
// before the cursor.
func Complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}
	return prompt.FilterHasPrefix(suggestions(), word, true)
}

func suggestions() []prompt.Suggest {
	var out []prompt.Suggest
	for _, t := range schema.All() {
		out = append(out, prompt.Suggest{Text: t.Name, Description: t.Layer + " table"})
	}
	for _, kw := range keywords {
		out = append(out, prompt.Suggest{Text: kw})
	}
	for _, c := range []string{cmdTables, cmdInsights, cmdHelp, cmdQuit} {
		out = append(out, prompt.Suggest{Text: c, Description: "command"})
	}
	return out
}
