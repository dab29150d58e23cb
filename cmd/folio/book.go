package main

import (
	"fmt"
	"os"

	"github.com/casualjim/folio/book"
	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func (a *app) compileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile BOOK",
		Short: "Compile a book into its JSON pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readBook(args[0])
			if err != nil {
				return err
			}
			if err := book.Validate(doc); err != nil {
				return err
			}
			a.dump("document", doc)

			data, err := book.ToJSON(doc)
			if err != nil {
				return err
			}
			data = append(data, '\n')
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(output, data, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the pipeline to a file instead of stdout")
	return cmd
}

func (a *app) printCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "print BOOK",
		Short: "Print a book or compiled pipeline in canonical book syntax",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readBook(args[0])
			if err != nil {
				return err
			}
			return renderMarkdown(cmd.OutOrStdout(), book.Print(doc), raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the book source without terminal styling")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate BOOK...",
		Short: "Check books for syntax and pipeline errors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				doc, err := readBook(path)
				if err == nil {
					err = book.Validate(doc)
				}
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), path)
					fmt.Fprintf(out, "  %s\n", errorText(err))
					continue
				}
				fmt.Fprintf(out, "%s %s (%d templates)\n", color.GreenString("✓"), path, len(doc.Templates))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d books are invalid", failed, len(args))
			}
			return nil
		},
	}
}

func (a *app) schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of compiled pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := json.MarshalIndent(book.Schema(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
