package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"declutter-go/internal/api"
	"declutter-go/internal/app"
	"declutter-go/internal/config"
	"declutter-go/internal/declutter"
	"declutter-go/internal/jobs"
	"declutter-go/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a DeclutterApp. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Analyze", "BatchMerge").
func newApp(cmd *cobra.Command, operation string) (*app.DeclutterApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDeclutterApp(cmd.Context(), cfg, operation, app.Options{Console: os.Stderr})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

func ownerFlag(cmd *cobra.Command) int64 {
	owner, _ := cmd.Flags().GetInt64("owner")
	return owner
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:          "declutter",
	Short:        "Find and merge duplicate files across cloud storage",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID:   %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Database:      %s\n", cfg.Database.Type)
		fmt.Printf("Archive:       %s\n", orNone(cfg.Archive.Type))
		fmt.Printf("Events:        %s\n", orNone(cfg.Events.Type))
		fmt.Printf("Primary cloud: %s\n", orNone(cfg.Analysis.PrimaryCloud))
		for _, p := range cfg.Providers {
			fmt.Printf("Provider:      %s (%s)\n", p.ProviderName(), p.Type)
		}
		return nil
	},
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage report encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the report encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SetupEncryption")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}
		if err := a.SetupEncryption(pass); err != nil {
			return err
		}
		fmt.Println("Encryption keys generated.")
		return nil
	},
}

// files command
var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage the file inventory",
}

var filesImportCmd = &cobra.Command{
	Use:   "import FILE.json",
	Short: "Import connections and files from an inventory document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ImportInventory")
		if err != nil {
			return err
		}
		defer a.Close()
		a.SetParameters(args[0])

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening inventory: %w", err)
		}
		defer f.Close()

		summary, err := a.ImportInventory(cmd.Context(), ownerFlag(cmd), f)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d connection(s) and %d file(s) for owner %d\n", summary.Connections, summary.Files, summary.OwnerID)
		return nil
	},
}

var filesAccessCmd = &cobra.Command{
	Use:   "access ID",
	Short: "Record an access of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid file id: %s", args[0])
		}
		a, err := newApp(cmd, "RecordAccess")
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := a.RecordAccess(cmd.Context(), ownerFlag(cmd), id)
		if err != nil {
			return err
		}
		fmt.Printf("File %d: %d access(es), %s\n", id, p.AccessCount, p.AccessFrequency)
		return nil
	},
}

// duplicates command
var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "List duplicate groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		byHash, _ := cmd.Flags().GetBool("by-hash")
		similar, _ := cmd.Flags().GetBool("similar")

		a, err := newApp(cmd, "FindDuplicates")
		if err != nil {
			return err
		}
		defer a.Close()

		if similar {
			groups, err := a.FindSimilar(cmd.Context(), ownerFlag(cmd))
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Println("No similar files found.")
				return nil
			}
			return printJSON(groups)
		}

		d, err := a.FindDuplicates(cmd.Context(), ownerFlag(cmd), scope, byHash)
		if err != nil {
			return err
		}
		if len(d.Groups) == 0 {
			fmt.Println("No duplicates found.")
		}
		for _, g := range d.Groups {
			cross := ""
			if g.CrossCloud() {
				cross = "  [cross-cloud]"
			}
			fmt.Printf("%s  %d file(s)  wasted %d bytes%s\n", g.Key, len(g.Files), g.WastedSize, cross)
			for _, f := range g.Files {
				fmt.Printf("    #%-6d %-12s %s\n", f.ID, f.Provider, f.Path)
			}
		}
		if len(d.Unverifiable) > 0 {
			fmt.Printf("%d file(s) without a content hash could not be verified\n", len(d.Unverifiable))
		}
		return nil
	},
}

// merge command
var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge one duplicate group",
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts app.MergeOptions
		opts.Key, _ = cmd.Flags().GetString("key")
		opts.Scope, _ = cmd.Flags().GetString("scope")
		opts.Strategy, _ = cmd.Flags().GetString("strategy")
		opts.TargetCloud, _ = cmd.Flags().GetString("target-cloud")
		opts.Keep, _ = cmd.Flags().GetInt64("keep")

		a, err := newApp(cmd, "MergeGroup")
		if err != nil {
			return err
		}
		defer a.Close()
		a.SetParameters(opts.Key)

		res, err := a.Merge(cmd.Context(), ownerFlag(cmd), opts)
		if err != nil {
			return err
		}
		printResult(res)
		return nil
	},
}

func printResult(r *declutter.MergeResult) {
	if r.Status != declutter.MergeSuccess {
		fmt.Printf("%s  failed: %s\n", r.GroupID, r.Detail)
		return
	}
	fmt.Printf("%s  kept #%d, removed %v, reclaimed %d bytes (%s)\n", r.GroupID, r.KeptID, r.RemovedIDs, r.ReclaimedBytes, r.Strategy)
	for _, f := range r.RemoteFailures {
		fmt.Printf("    remote delete of #%d on %s failed, queued for retry: %s\n", f.FileID, f.Provider, f.Message)
	}
	for _, id := range r.SkippedRemote {
		fmt.Printf("    #%d has no configured remote deleter\n", id)
	}
}

var batchMergeCmd = &cobra.Command{
	Use:   "batch-merge",
	Short: "Merge every duplicate group in scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("scope")
		strategy, _ := cmd.Flags().GetString("strategy")

		a, err := newApp(cmd, "BatchMerge")
		if err != nil {
			return err
		}
		defer a.Close()
		a.SetParameters(fmt.Sprintf("scope=%s strategy=%s", scope, strategy))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		results, err := a.BatchMerge(ctx, ownerFlag(cmd), scope, strategy)
		for _, r := range results {
			printResult(r)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Merged %d group(s)\n", len(results))
		return nil
	},
}

var retryDeletesCmd = &cobra.Command{
	Use:   "retry-deletes",
	Short: "Retry queued remote deletions",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "RetryRemoteDeletes")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.RetryDeletes(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("Retried %d, succeeded %d, failed %d\n", report.Attempted, report.Succeeded, len(report.Failed))
		return nil
	},
}

// analytics commands
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "AnalyzeStorage")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Analyze(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var savingsCmd = &cobra.Command{
	Use:   "savings",
	Short: "Calculate potential savings",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "CalculateSavings")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Savings(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var recommendationsCmd = &cobra.Command{
	Use:   "recommendations",
	Short: "Manage optimization recommendations",
}

var recommendationsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate fresh recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "GenerateRecommendations")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.GenerateRecommendations(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		printRecommendations(recs)
		return nil
	},
}

var recommendationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored recommendations",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		a, err := newApp(cmd, "ListRecommendations")
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.ListRecommendations(cmd.Context(), ownerFlag(cmd), status)
		if err != nil {
			return err
		}
		printRecommendations(recs)
		return nil
	},
}

func printRecommendations(recs []*model.OptimizationRecommendation) {
	if len(recs) == 0 {
		fmt.Println("No recommendations.")
		return
	}
	for _, r := range recs {
		fmt.Printf("#%-5d %-9s %-9s %8.3f GB  %s\n", r.ID, r.Type, r.Status, r.PotentialSavings, r.Title)
	}
}

func recommendationStatusCmd(use, short string, status model.RecommendationStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid recommendation id: %s", args[0])
			}
			a, err := newApp(cmd, "SetRecommendationStatus")
			if err != nil {
				return err
			}
			defer a.Close()
			a.SetParameters(fmt.Sprintf("%d=%s", id, status))

			if err := a.SetRecommendationStatus(cmd.Context(), ownerFlag(cmd), id, status); err != nil {
				return err
			}
			fmt.Printf("Recommendation #%d %s\n", id, status)
			return nil
		},
	}
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View analysis history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ops, _ := cmd.Flags().GetBool("operations")

		a, err := newApp(cmd, "History")
		if err != nil {
			return err
		}
		defer a.Close()

		if ops {
			return printOperations(cmd.Context(), a, limit)
		}

		snaps, err := a.History(cmd.Context(), ownerFlag(cmd), limit)
		if err != nil {
			return err
		}
		if len(snaps) == 0 {
			fmt.Println("No analyses recorded.")
			return nil
		}
		for _, s := range snaps {
			fmt.Printf("#%d  %s  %d file(s)  %d bytes  duplicates %d bytes  $%.4f/month\n",
				s.ID,
				s.AnalysisDate.Format("2006-01-02 15:04:05"),
				s.FileCount,
				s.TotalSize,
				s.DuplicateSize,
				s.PotentialSavings,
			)
		}
		return nil
	},
}

func printOperations(ctx context.Context, a *app.DeclutterApp, limit int) error {
	ops, err := a.Operations(ctx, limit)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		fmt.Println("No operations recorded.")
		return nil
	}
	for _, op := range ops {
		duration := ""
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
		}
		fmt.Printf("#%d  %-24s  %s  %-8s  %s\n",
			op.ID,
			op.Operation,
			op.StartedAt.Format("2006-01-02 15:04:05"),
			op.Status,
			duration,
		)
	}
	return nil
}

// plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the subscription plan",
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the owner's plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ShowPlan")
		if err != nil {
			return err
		}
		defer a.Close()

		plan, err := a.Plan(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		fmt.Println(plan)
		return nil
	},
}

var planSetCmd = &cobra.Command{
	Use:   "set PLAN",
	Short: "Move the owner to a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "SetPlan")
		if err != nil {
			return err
		}
		defer a.Close()
		a.SetParameters(args[0])

		if err := a.SetPlan(cmd.Context(), ownerFlag(cmd), args[0]); err != nil {
			return err
		}
		fmt.Printf("Owner %d is now on %s\n", ownerFlag(cmd), args[0])
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export and open analysis reports",
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Run an analysis and store the report in the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp(cmd, "ExportReport")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.ExportReport(cmd.Context(), ownerFlag(cmd), encrypt)
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exported reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "ListReports")
		if err != nil {
			return err
		}
		defer a.Close()

		keys, err := a.ListReports(cmd.Context(), ownerFlag(cmd))
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var reportOpenCmd = &cobra.Command{
	Use:   "open KEY",
	Short: "Print an exported report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "OpenReport")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.OpenReport(cmd.Context(), args[0], func() (string, error) {
			return readPassphrase("Passphrase: ")
		}, os.Stdout)
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Server.Listen = listen
		}
		ttl := 30 * time.Minute
		if cfg.Server.JobTTL != "" {
			if ttl, err = time.ParseDuration(cfg.Server.JobTTL); err != nil {
				return fmt.Errorf("invalid server.job_ttl: %w", err)
			}
		}

		a, err := app.NewDeclutterApp(cmd.Context(), cfg, "Serve", app.Options{Console: os.Stderr})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		store := jobs.NewStore(ttl, declutter.RealClock{}, declutter.UUIDGenerator{})
		srv := &http.Server{
			Addr:              cfg.Server.Listen,
			Handler:           api.NewServer(a.Service(), store, a.Logger()).Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			a.Logger().Info("http server listening", "addr", cfg.Server.Listen)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.Logger().Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.PersistentFlags().Int64("owner", 1, "Owner (user id) to operate on")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	rootCmd.AddCommand(configCmd)

	keysCmd.AddCommand(keysInitCmd)
	rootCmd.AddCommand(keysCmd)

	filesCmd.AddCommand(filesImportCmd)
	filesCmd.AddCommand(filesAccessCmd)
	rootCmd.AddCommand(filesCmd)

	rootCmd.AddCommand(duplicatesCmd)
	duplicatesCmd.Flags().String("scope", "all", "Scope: all, same_cloud or cross_cloud")
	duplicatesCmd.Flags().Bool("by-hash", false, "Group by content hash instead of name and size")
	duplicatesCmd.Flags().Bool("similar", false, "List similarly named files instead")

	rootCmd.AddCommand(mergeCmd)
	mergeCmd.Flags().String("key", "", "Group key, as listed by `declutter duplicates`")
	mergeCmd.Flags().String("scope", "all", "Scope the group was detected in")
	mergeCmd.Flags().String("strategy", "", "Strategy: keep_largest, keep_most_recent, keep_primary_cloud or user_choice")
	mergeCmd.Flags().String("target-cloud", "", "Primary cloud for keep_primary_cloud")
	mergeCmd.Flags().Int64("keep", 0, "File id to keep (implies user_choice)")
	mergeCmd.MarkFlagRequired("key")

	rootCmd.AddCommand(batchMergeCmd)
	batchMergeCmd.Flags().String("scope", "all", "Scope: all, same_cloud or cross_cloud")
	batchMergeCmd.Flags().String("strategy", "", "Strategy for every group; empty lets the selection policy choose")

	rootCmd.AddCommand(retryDeletesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(savingsCmd)

	recommendationsCmd.AddCommand(recommendationsGenerateCmd)
	recommendationsCmd.AddCommand(recommendationsListCmd)
	recommendationsListCmd.Flags().String("status", "", "Filter by status: pending, applied or dismissed")
	recommendationsCmd.AddCommand(recommendationStatusCmd("apply", "Mark a recommendation applied", model.StatusApplied))
	recommendationsCmd.AddCommand(recommendationStatusCmd("dismiss", "Dismiss a recommendation", model.StatusDismissed))
	rootCmd.AddCommand(recommendationsCmd)

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries to show")
	historyCmd.Flags().Bool("operations", false, "Show recorded CLI operations instead of analyses")

	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planSetCmd)
	rootCmd.AddCommand(planCmd)

	reportCmd.AddCommand(reportExportCmd)
	reportExportCmd.Flags().Bool("encrypt", false, "Encrypt the report with the report key pair")
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportOpenCmd)
	rootCmd.AddCommand(reportCmd)

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "Listen address (overrides server.listen)")
}
