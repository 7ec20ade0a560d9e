package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/service"
	"github.com/spf13/cobra"
)

var (
	storeDescription string
	includeSources   bool
	complexQuery     bool
	chatUser         int64
)

// storesCmd groups catalog maintenance commands
var storesCmd = &cobra.Command{
	Use:   "stores",
	Short: "Manage the store catalog",
}

var storesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered stores",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		stores, err := a.registry.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tDOCUMENTS\tAUTO SYNC\tDESCRIPTION")
		for _, s := range stores {
			fmt.Fprintf(w, "%s\t%s\t%d\t%t\t%s\n", s.ID, s.Name, len(s.Documents), s.AutoSync, s.Description)
		}
		return w.Flush()
	}),
}

var storesCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a store in the catalog and on the backend",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		store, err := a.registry.Create(ctx, strings.Join(args, " "), storeDescription)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", store.Name, store.ID)
		return nil
	}),
}

var storesDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a store and its backend data",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		store, err := findStore(ctx, a, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if err := a.registry.Delete(ctx, store.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", store.Name)
		return nil
	}),
}

var storesUploadCmd = &cobra.Command{
	Use:   "upload [name] [file...]",
	Short: "Upload local files into a store",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		store, err := findStore(ctx, a, args[0])
		if err != nil {
			return err
		}
		report := &service.IngestReport{}
		for _, path := range args[1:] {
			info, err := os.Stat(path)
			if err != nil {
				report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", path, err))
				continue
			}
			file := domain.FetchedFile{Path: path, Filename: filepath.Base(path), Size: info.Size()}
			if err := a.ingest.UploadLocal(ctx, store, file); err != nil {
				report.Failed = append(report.Failed, fmt.Sprintf("%s: %v", file.Filename, err))
				continue
			}
			report.Uploaded = append(report.Uploaded, file.Filename)
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
		return nil
	}),
}

var storesAskCmd = &cobra.Command{
	Use:   "ask [name] [question...]",
	Short: "Ask one store directly, bypassing classification",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		store, err := findStore(ctx, a, args[0])
		if err != nil {
			return err
		}
		complexity := domain.ComplexityMedium
		if complexQuery {
			complexity = domain.ComplexityComplex
		}
		answer, err := a.registry.Query(ctx, store, strings.Join(args[1:], " "), complexity,
			service.QueryOptions{IncludeSources: includeSources})
		if err != nil {
			return err
		}
		if service.IsNotFound(answer) {
			answer = service.MsgNothingFound
		}
		fmt.Fprintln(cmd.OutOrStdout(), answer)
		return nil
	}),
}

var storesImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Register backend stores missing from the catalog",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		imported, err := a.registry.ImportRemote(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d stores\n", len(imported))
		for _, s := range imported {
			fmt.Fprintf(cmd.OutOrStdout(), "  + %s\n", s.Name)
		}
		return nil
	}),
}

var storesSyncCmd = &cobra.Command{
	Use:   "sync [name]",
	Short: "Re-upload everything behind a store's sync URLs",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		store, err := findStore(ctx, a, strings.Join(args, " "))
		if err != nil {
			return err
		}
		report, err := a.ingest.SyncStore(ctx, store)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Summary())
		return nil
	}),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Forget idle conversations and old export files once",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		return service.NewScheduler(a.memory, a.exporter, nil, a.cfg, a.logger).Sweep(ctx)
	}),
}

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Send one message through the pipeline and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error {
		userID := chatUser
		if userID == 0 {
			userID = a.cfg.Admin.UserID
		}
		reply := a.pipeline.Handle(ctx, domain.Inbound{UserID: userID, Text: strings.Join(args, " ")})
		for _, msg := range reply.Messages {
			fmt.Fprintln(cmd.OutOrStdout(), msg)
		}
		for _, att := range reply.Attachments {
			fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", att.Format, att.Path)
		}
		return nil
	}),
}

func init() {
	storesCreateCmd.Flags().StringVarP(&storeDescription, "description", "d", "", "store description used for routing")
	storesAskCmd.Flags().BoolVar(&includeSources, "sources", false, "append cited source files")
	storesAskCmd.Flags().BoolVar(&complexQuery, "think", false, "use the stronger model")
	chatCmd.Flags().Int64VarP(&chatUser, "user", "u", 0, "chat user id (defaults to the administrator)")

	storesCmd.AddCommand(storesListCmd, storesCreateCmd, storesDeleteCmd, storesUploadCmd,
		storesAskCmd, storesImportCmd, storesSyncCmd)
	rootCmd.AddCommand(chatCmd)
}

// withApp builds the application for a one-shot command and closes it afterwards
func withApp(run func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return run(ctx, a, cmd, args)
	}
}

func findStore(ctx context.Context, a *app, name string) (*domain.Store, error) {
	store, err := a.registry.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("store %q: %w", name, domain.ErrNotFound)
	}
	return store, nil
}
