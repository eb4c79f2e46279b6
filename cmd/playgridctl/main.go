// playgridctl is an editing shell over a playgrid session: it creates a
// session against the silent transport (no sound, full editing), and runs
// the command language interactively, from a script file, or from piped
// input.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/mattn/go-isatty"

	"github.com/zynthbox/playgrid"
	"github.com/zynthbox/playgrid/commands"
	"github.com/zynthbox/playgrid/transport"
)

// isTerminal returns true if stdin is a terminal (TTY).
func isTerminal() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// runBatch feeds a stream of command lines to the handler, one per line.
// Blank lines and # comments are skipped, every executed line is echoed
// with the tool's prompt so script output stays readable, and an exit/quit
// line ends the run early. The returned error summarises how many commands
// failed; individual failures are reported as they happen with their line
// number.
func runBatch(reader io.Reader, handler *commands.Handler) error {
	scanner := bufio.NewScanner(reader)
	failed := 0
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		command := strings.TrimSpace(scanner.Text())
		if command == "" || strings.HasPrefix(command, "#") {
			continue
		}
		if strings.EqualFold(command, "exit") || strings.EqualFold(command, "quit") {
			break
		}
		fmt.Printf("playgridctl> %s\n", command)
		if err := handler.ProcessCommand(command); err != nil {
			fmt.Fprintf(os.Stderr, "line %d: %v\n", lineNumber, err)
			failed++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d command(s) failed", failed)
	}
	return nil
}

func main() {
	scriptFile := flag.String("script", "", "execute commands from file")
	dataDir := flag.String("data", ".", "session data directory")
	sequenceName := flag.String("sequence", "", "sequence to edit (default: the global sequence)")
	flag.Parse()

	manager := playgrid.NewManager(transport.Silent(), nil, nil)
	defer manager.Close()
	handler := commands.New(manager, *sequenceName, *dataDir)

	if *scriptFile != "" {
		f, err := os.Open(*scriptFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening script file: %v\n", err)
			os.Exit(2)
		}
		defer f.Close()
		if err := runBatch(f, handler); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if !isTerminal() {
		if err := runBatch(os.Stdin, handler); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("playgrid editor. Type 'help' for commands, 'quit' to exit.")
	rl, err := readline.New("> ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			// EOF or interrupt ends the session.
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "quit") || strings.EqualFold(line, "exit") {
			break
		}
		if err := handler.ProcessCommand(line); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
	fmt.Println("Goodbye!")
}
