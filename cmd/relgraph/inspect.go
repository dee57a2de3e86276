package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/syssam/relgraph/compiler/gen"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		entity string
		edges  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the entities, edges and operations of the models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := a.table()
			if err != nil {
				return err
			}
			g := t.Graph()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()
			if edges {
				fmt.Fprintln(tw, "SOURCE\tTARGET\tALIAS\tKIND\tLOADED")
				for _, e := range g.Entities() {
					if entity != "" && e.Name != entity {
						continue
					}
					out, err := g.EdgesFrom(e.Name)
					if err != nil {
						return err
					}
					for _, edge := range out {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", edge.Source, edge.Target, edge.Alias, edge.Kind, edge.Loaded())
					}
				}
				return nil
			}
			ops := t.Operations()
			if entity != "" {
				if _, err := g.Entity(entity); err != nil {
					return err
				}
				ops = t.Entity(entity)
			}
			fmt.Fprintln(tw, "ENTITY\tOPERATION\tRETURNS\tDESCRIPTION")
			for _, op := range ops {
				sig := strings.TrimSuffix(op.Signature(), " "+op.Returns().String())
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", op.Entity, sig, op.Returns(), gen.Describe(op))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&entity, "entity", "e", "", "only this entity")
	cmd.Flags().BoolVar(&edges, "edges", false, "list edges instead of operations")
	return cmd
}
