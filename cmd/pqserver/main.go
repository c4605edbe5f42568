// Copyright (c) 2024 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Command pqserver is a thin, interactive front end over one in-process
// pq.Server: no network listener, no workload generator, just a REPL of
// cobra subcommands reading from stdin so a single session can insert,
// erase, validate, and inspect the store across many commands.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pequod-go/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := run(os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	srv := pq.NewServer(pq.WithLogger(log))
	root := newRootCmd(srv, out)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintln(out, "error:", err)
			continue
		}
		root.SetArgs(args)
		if err := root.Execute(); err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
	return scanner.Err()
}

// splitArgs tokenizes one REPL line on spaces, honoring double quotes
// around a value that itself contains spaces (e.g. insert k "hello world").
func splitArgs(line string) ([]string, error) {
	var args []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() > 0 {
			args = append(args, cur.String())
			cur.Reset()
		}
	}
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated quote in %q", line)
	}
	flush()
	return args, nil
}

func newRootCmd(srv *pq.Server, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pqserver",
		Short:         "interactive materialized-view key/value store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		insertCmd(srv),
		eraseCmd(srv),
		validateCmd(srv),
		addJoinCmd(srv),
		statsCmd(srv, out),
	)
	return root
}

func insertCmd(srv *pq.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "insert <key> <value>",
		Short: "write a key/value entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			srv.Insert([]byte(args[0]), []byte(args[1]))
			return nil
		},
	}
}

func eraseCmd(srv *pq.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "erase <key>",
		Short: "remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			srv.Erase([]byte(args[0]))
			return nil
		},
	}
}

func validateCmd(srv *pq.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <first> <last>",
		Short: "bring every join whose sink overlaps [first, last) up to date",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return srv.Validate([]byte(args[0]), []byte(args[1]))
		},
	}
}

func addJoinCmd(srv *pq.Server) *cobra.Command {
	return &cobra.Command{
		Use:   "add-join <spec> <first> <last>",
		Short: "register a join over the sink range [first, last)",
		Long: `Registers a materialized-view spec, e.g.:

  add-join "count v|<u:1> f|<u>|<v:1>" "v|" "v}"

spec follows the grammar: [verb] sink-pattern source-pattern... [maintained] [staleness=<us>].`,
		Args: cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			return srv.AddJoin(args[0], []byte(args[1]), []byte(args[2]))
		},
	}
}

func statsCmd(srv *pq.Server, out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print a JSON snapshot of store and per-table counters",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			b, err := json.MarshalIndent(srv.Stats(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))
			return nil
		},
	}
}
