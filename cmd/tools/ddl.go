package main

import (
	"fmt"
	"io"
	"os"

	"github.com/lychee-technology/dynaform"
	"github.com/lychee-technology/dynaform/internal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDDLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ddl <collection.yaml|->",
		Short: "Print the DDL a collection definition would execute",
		Long: `ddl reads a collection definition in YAML and prints the statements
that create its table, trigger and indexes. Nothing is executed.

Example definition:

  name: posts
  displayName: Posts
  fields:
    - name: title
      type: STRING
      required: true
    - name: slug
      type: SLUG
      unique: true
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open definition: %w", err)
				}
				defer f.Close()
				in = f
			}
			return writeDDL(cmd.OutOrStdout(), in)
		},
	}
}

func decodeDefinition(in io.Reader) (*dynaform.CreateCollectionRequest, error) {
	var req dynaform.CreateCollectionRequest
	dec := yaml.NewDecoder(in)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &req, nil
}

func writeDDL(w io.Writer, in io.Reader) error {
	req, err := decodeDefinition(in)
	if err != nil {
		return err
	}
	collection, stmts, err := internal.PlanCollection(internal.DefaultFieldTypeRegistry(), req)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "-- collection %s -> table %s\n", collection.Name, collection.TableName)
	for _, stmt := range stmts {
		fmt.Fprintf(w, "%s;\n", stmt)
	}
	return nil
}
