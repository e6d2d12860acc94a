package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/factory"
	"github.com/lychee-technology/dynaform/internal"
	"github.com/spf13/cobra"
)

func newDescribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe <collection>",
		Short: "Show the fields of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := internal.NewPostgresPool(ctx, loadedConfig.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			services, err := factory.NewServicesWithConfig(ctx, loadedConfig, pool, nil)
			if err != nil {
				return err
			}
			c, err := services.Collections.GetCollectionByName(ctx, args[0])
			if err != nil {
				return err
			}
			renderCollection(cmd.OutOrStdout(), c, internal.DefaultFieldTypeRegistry())
			return nil
		},
	}
}

func renderCollection(w io.Writer, c *dynaform.Collection, registry *internal.FieldTypeRegistry) {
	status := color.GreenString(string(c.Status))
	if c.Status == dynaform.CollectionStatusArchived {
		status = color.YellowString(string(c.Status))
	}
	fmt.Fprintf(w, "%s (%s)  table=%s  status=%s\n", c.DisplayName, c.Name, c.TableName, status)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "Column", "Type", "Physical", "Required", "Indexed", "Unique", "System"})
	for _, f := range c.Fields {
		t.AppendRow(table.Row{
			f.Position,
			f.Name,
			f.DBColumn,
			f.Type,
			registry.Lookup(f.Type).PhysicalType,
			mark(f.Required),
			mark(f.Indexed),
			mark(f.Unique),
			mark(f.System),
		})
	}
	t.Render()
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
