package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bassista/go_lmsync/internal/api/controller"
	"github.com/bassista/go_lmsync/internal/entity"
	"github.com/bassista/go_lmsync/internal/lms"
)

type syncOptions struct {
	*rootOptions
	Params map[string]string
	Force  bool
	All    bool
}

type syncOutput struct {
	Result controller.SyncResponse `json:"result"`
	Items  []entity.Record         `json:"items,omitempty"`
}

func newSyncCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &syncOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync <usecase>",
		Short: "Run a use case against the server and print the synced records",
		Long: `Run a use case once. A fresh cache key is served locally unless --force
is set; --all follows pagination to the last page.

Example:
  lmsync sync assignments --param course_id=7 --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringToStringVarP(&opts.Params, "param", "p", nil, "use case parameter (key=value), repeatable")
	cmd.Flags().BoolVar(&opts.Force, "force", false, "ignore the cache freshness")
	cmd.Flags().BoolVar(&opts.All, "all", false, "fetch every page")

	return cmd
}

func runSync(cmd *cobra.Command, opts *syncOptions, name string) error {
	a, err := openApp(cmd, opts.rootOptions, false)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	uc, err := a.Build(name, lms.Params(opts.Params))
	if err != nil {
		return err
	}
	res := a.Sync(cmd.Context(), uc, opts.Force, opts.All)

	out := syncOutput{Result: controller.NewSyncResponse(res)}
	if entry, _ := a.Catalog.Lookup(name); !entry.Mutates {
		out.Items = a.Store.Query(uc.Scope())
	}

	p := newPrinter(opts.rootOptions, cmd.OutOrStdout())
	if p.json() {
		if err := p.writeJSON(out); err != nil {
			return err
		}
	} else {
		p.result(out.Result)
		p.records(out.Items, "  ")
	}
	if res.Err != nil {
		return fmt.Errorf("%w: %s: %w", errSyncFailed, name, res.Err)
	}
	return nil
}

type viewOptions struct {
	*rootOptions
	Params  map[string]string
	Timeout time.Duration
}

func newViewCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &viewOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "view <usecase>",
		Short: "Open a use case the way a screen does and print its first settled state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runView(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringToStringVarP(&opts.Params, "param", "p", nil, "use case parameter (key=value), repeatable")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", time.Minute, "how long to wait for the view to settle")

	return cmd
}

func runView(cmd *cobra.Command, opts *viewOptions, name string) error {
	a, err := openApp(cmd, opts.rootOptions, false)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	if entry, ok := a.Catalog.Lookup(name); ok && entry.Mutates {
		return fmt.Errorf("use case %s changes server state and cannot be viewed", name)
	}
	uc, err := a.Build(name, lms.Params(opts.Params))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	snap, err := a.View(ctx, uc)
	if err != nil {
		return fmt.Errorf("view %s: %w", name, err)
	}
	view := controller.NewViewResponse(snap, uc.Scope().SectionKey != "")

	p := newPrinter(opts.rootOptions, cmd.OutOrStdout())
	if p.json() {
		return p.writeJSON(view)
	}
	fmt.Fprintf(p.w, "%s  state=%s complete=%t\n", uc.Name(), view.State, view.Complete)
	if view.Error != "" {
		fmt.Fprintf(p.w, "  error (%s, full=%t): %s\n", view.Kind, view.FullError, view.Error)
	}
	if len(view.Sections) == 0 {
		p.records(view.Items, "  ")
		return nil
	}
	for _, sec := range view.Sections {
		fmt.Fprintf(p.w, "  [%s]\n", sec.Key)
		p.records(sec.Items, "    ")
	}
	return nil
}

type warmOptions struct {
	*rootOptions
	Force bool
}

func newWarmCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &warmOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Download every parameterless use case for offline use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWarm(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Force, "force", false, "ignore the cache freshness")
	return cmd
}

func runWarm(cmd *cobra.Command, opts *warmOptions) error {
	a, err := openApp(cmd, opts.rootOptions, false)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	results, warmErr := a.Warm(cmd.Context(), opts.Force)
	out := make([]controller.SyncResponse, 0, len(results))
	for _, res := range results {
		out = append(out, controller.NewSyncResponse(res))
	}

	p := newPrinter(opts.rootOptions, cmd.OutOrStdout())
	if p.json() {
		if err := p.writeJSON(out); err != nil {
			return err
		}
	} else {
		for _, res := range out {
			p.result(res)
		}
	}
	if warmErr != nil {
		return fmt.Errorf("%w: %w", errSyncFailed, warmErr)
	}
	return nil
}

func newUseCasesCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usecases",
		Short: "List the use cases that can be run by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := lms.NewCatalog().Entries()
			p := newPrinter(rootOpts, cmd.OutOrStdout())
			if p.json() {
				return p.writeJSON(entries)
			}
			for _, e := range entries {
				line := fmt.Sprintf("%-18s %s", e.Name, e.Description)
				for _, param := range e.Params {
					line += fmt.Sprintf(" --param %s=...", param)
				}
				if e.Mutates {
					line += " (mutates)"
				}
				fmt.Fprintln(p.w, line)
			}
			return nil
		},
	}
}
