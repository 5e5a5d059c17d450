// Command rowtablectl is an interactive shell over a single on-disk table:
// open or create it with a schema, then either insert rows with the
// textual insertion grammar or run a handful of meta commands to inspect
// it. It talks to the table in-process; there is no server.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/vexarch/framedb/internal/config"
	"github.com/vexarch/framedb/internal/query"
	"github.com/vexarch/framedb/internal/record"
	"github.com/vexarch/framedb/internal/storage"
)

// History is an append-only, file-backed command history, mirroring the
// client REPL's own bookkeeping rather than relying solely on readline's
// in-memory list.
type History struct {
	path  string
	lines []string
}

func NewHistory(path string) *History { return &History{path: path} }

func (h *History) Load(max int) error {
	if h.path == "" {
		return nil
	}
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		h.lines = append(h.lines, s)
		if max > 0 && len(h.lines) > max {
			h.lines = h.lines[len(h.lines)-max:]
		}
	}
	return sc.Err()
}

func (h *History) Append(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" || h.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(h.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, cmd); err != nil {
		return err
	}
	h.lines = append(h.lines, cmd)
	return nil
}

func (h *History) Print(last int) {
	if last <= 0 || last > len(h.lines) {
		last = len(h.lines)
	}
	start := len(h.lines) - last
	if start < 0 {
		start = 0
	}
	for i := start; i < len(h.lines); i++ {
		fmt.Printf("%5d  %s\n", i+1, h.lines[i])
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".rowtablectl_history"
	}
	return filepath.Join(home, ".rowtablectl_history")
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\")
}

func printRows(schema *record.Schema, rows []record.Values) {
	cols := schema.Columns()
	for i, row := range rows {
		fields := make([]string, len(row))
		for j, v := range row {
			fields[j] = fmt.Sprintf("%s=%v", cols[j].Name, v)
		}
		fmt.Printf("%5d  %s\n", i, strings.Join(fields, ", "))
	}
	fmt.Printf("(%d rows)\n", len(rows))
}

type shell struct {
	dir     string
	table   *storage.Table
	history *History
	rl      *readline.Instance
}

func (sh *shell) handleMeta(line string) bool {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "\\q", "\\quit", "\\exit":
		return false

	case "\\help":
		fmt.Println(`meta commands:
  \open <dir> <name> <schema>   open or create a table, e.g. \open . widgets |id:INT32|name:STRING|
  \all                           print every row
  \get <index>                   print the row at index
  \remove <index>                 remove the row at index
  \clear                          remove every row
  \history                        print command history
  \q | \quit | \exit              quit

anything else is parsed as an insertion query against the open table:
  1, "a"
  (1, "a"), (2, "b")`)

	case "\\open":
		if len(args) < 3 {
			fmt.Println("usage: \\open <dir> <name> <schema>")
			break
		}
		schemaText := strings.Join(args[2:], " ")
		schema, err := record.Parse(schemaText)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		if sh.table != nil {
			_ = sh.table.Close()
		}
		tbl, err := storage.OpenOrCreate(args[0], args[1], schema)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		sh.table = tbl
		fmt.Printf("opened %q (%d rows)\n", args[1], tbl.RowCount())

	case "\\all":
		if !sh.requireTable() {
			break
		}
		rows, err := sh.table.GetAll()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		printRows(sh.table.Schema(), rows)

	case "\\get":
		if !sh.requireTable() || len(args) != 1 {
			fmt.Println("usage: \\get <index>")
			break
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		row, err := sh.table.GetElement(idx)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		printRows(sh.table.Schema(), []record.Values{row})

	case "\\remove":
		if !sh.requireTable() || len(args) != 1 {
			fmt.Println("usage: \\remove <index>")
			break
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		if err := sh.table.Remove(idx); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Println("OK")

	case "\\clear":
		if !sh.requireTable() {
			break
		}
		if err := sh.table.Clear(); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		fmt.Println("OK")

	case "\\history":
		sh.history.Print(50)

	default:
		fmt.Printf("unknown command: %s\n", cmd)
	}
	return true
}

func (sh *shell) requireTable() bool {
	if sh.table == nil {
		fmt.Println("no table open; use \\open <dir> <name> <schema>")
		return false
	}
	return true
}

func (sh *shell) handleInsert(line string) {
	if !sh.requireTable() {
		return
	}
	n, err := query.InsertInto(sh.table, line)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	fmt.Printf("OK (%d inserted)\n", n)
}

func main() {
	var (
		histPath   = flag.String("history", defaultHistoryPath(), "history file path")
		histMax    = flag.Int("history-max", 2000, "max history lines loaded into memory")
		configPath = flag.String("config", "", "optional YAML config overriding storage defaults")
	)
	flag.Parse()

	prompt := "rowtablectl> "
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg.Apply()
		if cfg.CLI.HistoryFile != "" {
			*histPath = cfg.CLI.HistoryFile
		}
		if cfg.CLI.Prompt != "" {
			prompt = cfg.CLI.Prompt
		}
	}

	h := NewHistory(*histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	sh := &shell{history: h, rl: rl}
	defer func() {
		if sh.table != nil {
			_ = sh.table.Close()
		}
	}()

	fmt.Println("type \\help for help")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			fmt.Println("^C")
			continue
		}
		if err != nil {
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		_ = h.Append(line)
		_ = rl.SaveHistory(line)

		if isMetaCommand(line) {
			if !sh.handleMeta(line) {
				return
			}
			continue
		}
		sh.handleInsert(line)
	}
}
