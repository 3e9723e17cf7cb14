package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shipq/tenantdb/fieldreg"
	"github.com/shipq/tenantdb/predicate"
	"github.com/shipq/tenantdb/sqlfrag"
	"github.com/shipq/tenantdb/tenant"
)

// sqlCmd compiles representative statements against the demo schema and
// prints them with their bound arguments, so the placeholder numbering and
// tenant scoping are inspectable without a database.
func sqlCmd() {
	reg, table, err := demoSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx := tenant.WithID(context.Background(), "6a1f0b52-0000-7000-8000-000000000001")
	scope, _ := table.Field("orgId")
	soft, _ := table.Marked(fieldreg.MarkSoftDelete)

	type demo struct {
		name  string
		preds []predicate.Pred
	}
	demos := []demo{
		{"equality", []predicate.Pred{
			predicate.Tuple{Column: "slug", Value: "atlas"},
		}},
		{"comparison and like", []predicate.Pred{
			predicate.Field{Field: "taskCount", Op: predicate.OpGte, Value: 10},
			predicate.Field{Field: "title", Op: predicate.OpLike, Value: "%beta%"},
		}},
		{"membership", []predicate.Pred{
			predicate.Field{Field: "slug", Op: predicate.OpIn, Values: []any{"atlas", "borealis"}},
		}},
		{"jsonb", []predicate.Pred{
			predicate.Field{Field: "settings", Op: predicate.OpContains, Value: map[string]any{"tier": "pro"}},
			predicate.Field{Field: "settings", Op: predicate.OpHasKey, Value: "webhooks"},
		}},
		{"temporal on the pk", []predicate.Pred{
			predicate.Field{Field: "id", Op: predicate.OpAfter, Value: "2026-01-01T00:00:00Z"},
		}},
	}

	for _, d := range demos {
		var b sqlfrag.Builder
		b.Write("SELECT * FROM ")
		b.WriteIdent(table.Ident())
		b.Write(" WHERE ")
		if err := predicate.Where(reg, &b, d.preds); err != nil {
			fmt.Fprintf(os.Stderr, "error: compile %s: %v\n", d.name, err)
			os.Exit(1)
		}
		b.Write(" AND ")
		b.WriteIdent(soft.Ident())
		b.Write(" IS NULL")
		if err := tenant.Autoscope(ctx, "demo."+d.name, scope.Ident(), scope.Cast(), &b); err != nil {
			fmt.Fprintf(os.Stderr, "error: scope %s: %v\n", d.name, err)
			os.Exit(1)
		}
		printFragment(d.name, b.Fragment())
	}

	var b sqlfrag.Builder
	b.Write("UPDATE ")
	b.WriteIdent(table.Ident())
	b.Write(" SET ")
	err = predicate.Entries(reg, &b, map[string]predicate.Update{
		"title":     predicate.Set{Value: "Atlas v2"},
		"taskCount": predicate.Inc{Delta: 1},
		"settings":  predicate.JSONSet{Path: []string{"tier"}, Value: "enterprise"},
		"updatedAt": predicate.Now{},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: compile update: %v\n", err)
		os.Exit(1)
	}
	b.Write(" WHERE ")
	b.WriteIdent(soft.Ident())
	b.Write(" IS NULL")
	if err := tenant.Autoscope(ctx, "demo.update", scope.Ident(), scope.Cast(), &b); err != nil {
		fmt.Fprintf(os.Stderr, "error: scope update: %v\n", err)
		os.Exit(1)
	}
	printFragment("update vocabulary", b.Fragment())
}

func printFragment(name string, f sqlfrag.Fragment) {
	fmt.Printf("-- %s\n%s\n", name, f.SQL)
	for i, a := range f.Args {
		fmt.Printf("   $%d = %v\n", i+1, a)
	}
	fmt.Println()
}
