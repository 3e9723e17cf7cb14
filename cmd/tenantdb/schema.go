package main

import (
	"fmt"

	"github.com/shipq/tenantdb/fieldreg"
)

// demoSchema is the projects table both subcommands work against. It
// exercises every mark and wrap the registry knows about.
func demoSchema() (*fieldreg.Registry, fieldreg.Table, error) {
	reg, err := fieldreg.New([]fieldreg.Descriptor{
		{Field: "id", SQLType: "uuid", Mark: fieldreg.MarkPK, Gen: fieldreg.GenStored},
		{Field: "orgId", SQLType: "uuid", Gen: fieldreg.GenStored, RefTable: "orgs"},
		{Field: "slug", SQLType: "text", Mark: fieldreg.MarkCasefold, Gen: fieldreg.GenStored},
		{Field: "title", SQLType: "text", Gen: fieldreg.GenStored},
		{Field: "apiKey", SQLType: "text", Nullable: true, Gen: fieldreg.GenStored, Wraps: []fieldreg.Wrap{fieldreg.WrapSensitive, fieldreg.WrapOptional}},
		{Field: "settings", SQLType: "jsonb", Nullable: true, Gen: fieldreg.GenStored, Wraps: []fieldreg.Wrap{fieldreg.WrapOptional}},
		{Field: "taskCount", SQLType: "bigint", Gen: fieldreg.GenStored, Wraps: []fieldreg.Wrap{fieldreg.WrapOptional}},
		{Field: "updatedAt", SQLType: "timestamptz", Gen: fieldreg.GenServer, Wraps: []fieldreg.Wrap{fieldreg.WrapAutoTimestamp}},
		{Field: "deletedAt", SQLType: "timestamptz", Nullable: true, Mark: fieldreg.MarkSoftDelete, Gen: fieldreg.GenServer},
		{Field: "expiresAt", SQLType: "timestamptz", Nullable: true, Mark: fieldreg.MarkExpiry, Gen: fieldreg.GenStored, Wraps: []fieldreg.Wrap{fieldreg.WrapOptional}},
	})
	if err != nil {
		return nil, fieldreg.Table{}, fmt.Errorf("build registry: %w", err)
	}

	table := fieldreg.Table{Name: "projects"}
	for _, f := range []string{"id", "orgId", "slug", "title", "apiKey", "settings", "taskCount", "updatedAt", "deletedAt", "expiresAt"} {
		d, ok := reg.Resolve(f)
		if !ok {
			return nil, fieldreg.Table{}, fmt.Errorf("demo field %q missing from registry", f)
		}
		table.Fields = append(table.Fields, d)
	}
	table.Required = []string{"slug", "title"}
	table.UniqueGroups = [][]string{{"org_id", "slug"}}

	if err := table.Validate(reg); err != nil {
		return nil, fieldreg.Table{}, err
	}
	return reg, table, nil
}
