package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "ping":
		err = pingCommand(args)
	case "query":
		err = queryCommand(args)
	case "explain":
		err = explainCommand(args)
	case "version", "--version", "-v":
		err = versionCommand()
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.Error() != "" {
				fmt.Fprintln(os.Stderr, exitErr.Error())
			}
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("gristmuxd - tabular store diagnostic tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  gristmuxd ping [flags]              - Open a store and confirm it answers")
	fmt.Println("  gristmuxd query [flags]              - Run a structured query against a store")
	fmt.Println("  gristmuxd explain [flags]            - Compile a query to SQL without running it")
	fmt.Println("  gristmuxd version                    - Show version information")
	fmt.Println()
	fmt.Println("Common flags:")
	fmt.Println("  --db <path>                     - SQLite database path (default :memory:)")
	fmt.Println("  --table <id>                     - Table to query")
	fmt.Println("  --filter <expr>                  - Filter expression, e.g. 'Age >= 20 AND Name = \"Bob\"'")
	fmt.Println("  --sort <cols>                    - Comma-separated sort columns, \"-col\" for descending")
	fmt.Println("  --limit <n>                      - Limit the number of rows")
	fmt.Println("  --format table|json|jsonl        - Output format (default: table)")
	fmt.Println("  --stream                         - Use fetchQueryStreaming (query only)")
}
