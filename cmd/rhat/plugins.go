package main

import (
	"strings"

	"rhat/internal/core/plugins"
	"rhat/internal/platform/config"
	perr "rhat/internal/platform/errors"
	"rhat/internal/services/analyze/module"
	"rhat/internal/services/analyze/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newPluginsCmd() *cobra.Command {
	var kinds []string
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the components known to the loader",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			want := make([]plugins.Kind, 0, len(kinds))
			for _, k := range kinds {
				kind := plugins.Kind(strings.ToLower(k))
				if !kind.Valid() {
					return perr.WithField(perr.InvalidArgf("unknown kind %q", k), "kind")
				}
				want = append(want, kind)
			}

			opts := module.FromConfig(config.New())
			reg, err := plugins.NewLoader(opts.PluginDirs...).Registry()
			if err != nil {
				return err
			}

			t := service.NewTable("Components")
			t.AppendHeader(table.Row{"name", "kind", "requires"})
			for _, c := range reg.List(want...) {
				t.AppendRow(table.Row{c.Name, c.Kind, strings.Join(c.Requires, ", ")})
			}
			t.SetOutputMirror(cmd.OutOrStdout())
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only list these kinds (spec, parser, combiner, condition, incident, rule)")
	return cmd
}
