package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/casualjim/folio/book"
	"github.com/casualjim/folio/config"
	"github.com/casualjim/folio/events"
	"github.com/casualjim/folio/executor"
	"github.com/casualjim/folio/knowledge"
	"github.com/casualjim/folio/prepare"
	"github.com/casualjim/folio/provider"
	"github.com/casualjim/folio/remote"
	"github.com/casualjim/folio/types"
	"github.com/fatih/color"
	"github.com/fogfish/opts"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

func (a *app) runCmd() *cobra.Command {
	var (
		params    map[string]string
		remoteURL string
		token     string
		asJSON    bool
		raw       bool
	)
	cmd := &cobra.Command{
		Use:   "run BOOK",
		Short: "Execute a book with the configured providers",
		Long: `Execute a book, or a compiled pipeline, and print its output parameters.

Input parameters are passed with --param name=value. With --remote the pipeline
runs on a folio server instead of the local providers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readBook(args[0])
			if err != nil {
				return err
			}
			a.dump("document", doc)

			progress := func(p executor.Progress) { printProgress(cmd.ErrOrStderr(), p) }
			var res *executor.Result
			if remoteURL != "" {
				res, err = a.runRemote(cmd, doc, types.Parameters(params), remoteURL, token, progress)
			} else {
				res, err = a.runLocal(cmd, doc, types.Parameters(params), progress)
			}
			if err != nil {
				return err
			}
			a.dump("result", res)
			return writeResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res, asJSON, raw)
		},
	}
	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "input parameter as name=value, repeatable")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "websocket url of a folio server")
	cmd.Flags().StringVar(&token, "token", os.Getenv("FOLIO_TOKEN"), "bearer token for the remote server")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&raw, "raw", false, "print outputs without terminal styling")
	return cmd
}

func (a *app) runLocal(cmd *cobra.Command, doc *book.Document, params types.Parameters, progress func(executor.Progress)) (*executor.Result, error) {
	tools, err := a.cfg.Tools()
	if err != nil {
		return nil, err
	}
	if len(tools.Tools()) == 0 {
		return nil, errors.New("no providers configured, add one to " + configName(a.configPath))
	}

	preparer, closeStorage, err := a.openPreparer(tools)
	if err != nil {
		return nil, err
	}
	defer closeStorage()

	exec := executor.New(tools,
		executor.WithMaxParallel(a.cfg.Executor.MaxParallel),
		executor.WithProgress(progress),
	)
	res := exec.Execute(cmd.Context(), doc, params, prepare.Options{
		Preparer:  preparer,
		Knowledge: a.cfg.KnowledgeOptions(),
	})
	<-res.ProgressDone()
	return res, nil
}

func (a *app) runRemote(cmd *cobra.Command, doc *book.Document, params types.Parameters, url, token string, progress func(executor.Progress)) (*executor.Result, error) {
	var header http.Header
	if token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	client, err := remote.Dial(cmd.Context(), url, header)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.Execute(cmd.Context(), events.Execute{Pipeline: doc, Parameters: params}, progress)
}

// openPreparer creates a knowledge preparer whose cache persists to the configured storage.
func (a *app) openPreparer(tools provider.ExecutionTools) (*knowledge.Preparer, func(), error) {
	store, err := a.cfg.OpenStorage()
	if err != nil {
		return nil, nil, err
	}
	closeStorage := func() {
		if c, ok := store.(io.Closer); ok {
			_ = c.Close()
		}
	}
	options := []opts.Option[knowledge.Preparer]{knowledge.WithCache(knowledge.NewCache(knowledge.WithStorage(store)))}
	if tools != nil {
		options = append(options, knowledge.WithTools(tools))
	}
	return knowledge.NewPreparer(options...), closeStorage, nil
}

func writeResult(out, errOut io.Writer, res *executor.Result, asJSON, raw bool) error {
	if asJSON {
		data, err := json.MarshalIndent(struct {
			*executor.Result
			Errors []string `json:"errors,omitempty"`
		}{res, res.ErrorMessages()}, "", "  ")
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, string(data)); err != nil {
			return err
		}
	} else if md := resultMarkdown(res); md != "" {
		if err := renderMarkdown(out, md, raw); err != nil {
			return err
		}
	}

	summary := res.String()
	if res.Success {
		summary = color.GreenString(summary)
	} else {
		summary = color.RedString(summary)
	}
	fmt.Fprintf(errOut, "%s (cost $%.4f, %d output tokens)\n", summary, res.Usage.Price.Value, res.Usage.Output.Tokens)
	if !res.Success {
		return fmt.Errorf("run failed: %w", res.Err())
	}
	return nil
}

func configName(path string) string {
	if path == "" {
		return config.DefaultFile
	}
	return path
}
