package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shipq/tenantdb/db"
	"github.com/shipq/tenantdb/dburl"
)

// checkCmd validates the demo schema and, when DATABASE_URL is set, opens a
// pool against it and pings.
func checkCmd() {
	reg, table, err := demoSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: schema invalid: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("table %s: %d fields\n", table.Name, len(table.Fields))
	for _, d := range table.Fields {
		line := fmt.Sprintf("  %-12s -> %-12s %s", d.Field, d.ColumnName(), d.SQLType)
		if d.Mark != "" {
			line += fmt.Sprintf(" [%s]", d.Mark)
		}
		for _, w := range d.Wraps {
			line += fmt.Sprintf(" (%s)", w)
		}
		fmt.Println(line)
	}
	fmt.Printf("registry: %d descriptors ok\n", reg.Len())

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Println("DATABASE_URL not set, skipping connection check")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()
	fmt.Printf("connected to %s\n", dburl.Redact(databaseURL))
}
