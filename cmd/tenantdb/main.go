package main

import (
	"fmt"
	"os"
)

const usage = `tenantdb - Multi-tenant data access engine tools

Usage:
  tenantdb <command> [arguments]

Commands:
  sql           Print the SQL the engine compiles for the demo schema
  check         Validate the demo schema; with DATABASE_URL set, also
                connect and ping the database

Options:
  -h, --help    Show this help message

Run 'tenantdb <command> --help' for more information on a specific command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]

	switch cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
		os.Exit(0)

	case "sql":
		sqlCmd()

	case "check":
		checkCmd()

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", cmd)
		fmt.Fprintln(os.Stderr, "Run 'tenantdb --help' for usage.")
		os.Exit(1)
	}
}
