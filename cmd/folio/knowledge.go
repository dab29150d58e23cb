package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/provider"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func (a *app) knowledgeCmd() *cobra.Command {
	var (
		sources []string
		asJSON  bool
		embed   bool
	)
	cmd := &cobra.Command{
		Use:   "knowledge [BOOK]",
		Short: "Prepare knowledge sources into cached pieces",
		Long: `Fetch and split the knowledge sources of a book, plus any --source given,
and store the pieces in the configured storage. Later runs reuse them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var all []book.KnowledgeSource
			if len(args) == 1 {
				doc, err := readBook(args[0])
				if err != nil {
					return err
				}
				all = append(all, doc.Knowledge...)
			}
			for _, src := range sources {
				all = append(all, book.KnowledgeSource{Source: src})
			}
			if len(all) == 0 {
				return fmt.Errorf("nothing to prepare, pass a book with KNOWLEDGE commands or --source")
			}

			var tools provider.ExecutionTools
			o := a.cfg.KnowledgeOptions()
			if embed {
				mt, err := a.cfg.Tools()
				if err != nil {
					return err
				}
				tools = mt
			} else {
				o.EmbeddingModel = ""
			}

			preparer, closeStorage, err := a.openPreparer(tools)
			if err != nil {
				return err
			}
			defer closeStorage()

			pieces, err := preparer.Prepare(cmd.Context(), all, o)
			if err != nil {
				return err
			}
			a.dump("pieces", pieces)

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(pieces, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSOURCE\tCHARS\tTITLE")
			for _, p := range pieces {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.Name, p.SourceName, len(p.Content), p.Title)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %d pieces from %d sources\n", color.GreenString("prepared"), len(pieces), len(all))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "additional knowledge source, a url or a file path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the pieces as JSON")
	cmd.Flags().BoolVar(&embed, "embed", false, "compute embeddings with the configured providers")
	return cmd
}
