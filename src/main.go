package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mddb/src/directors"
	"mddb/src/engine"
	"mddb/src/helpers"
	"mddb/src/settings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	args = settings.GetSettings()

	rootCmd = &cobra.Command{
		Use:               "mddb",
		Short:             "Loads and maintains molecular dynamics datasets in MongoDB",
		SilenceUsage:      true,
		PersistentPreRunE: loadSettings,
	}
	loadCmd = &cobra.Command{
		Use:   "load <manifest>",
		Short: "Load the files, analyses and metadata listed in a manifest",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdLoad,
	}
	publishCmd = &cobra.Command{
		Use:   "publish <project>",
		Short: "Mark a project as published",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, a []string) error { return cmdPublish(cmd, a, true) },
	}
	unpublishCmd = &cobra.Command{
		Use:   "unpublish <project>",
		Short: "Mark a project as not published",
		Args:  cobra.ExactArgs(1),
		RunE:  func(cmd *cobra.Command, a []string) error { return cmdPublish(cmd, a, false) },
	}
	deleteCmd = &cobra.Command{
		Use:   "delete <project>",
		Short: "Delete a project with everything it owns",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdDelete,
	}
	renameFileCmd = &cobra.Command{
		Use:   "rename-file <project> <name> <new name>",
		Short: "Rename a stored file",
		Args:  cobra.ExactArgs(3),
		RunE:  cmdRenameFile,
	}
	findCmd = &cobra.Command{
		Use:   "find <id or accession>",
		Short: "Print the document with this id, or the project with this accession",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdFind,
	}
	cleanupCmd = &cobra.Command{
		Use:   "cleanup [key]",
		Short: "Delete orphan data, every kind when no key is given",
		Args:  cobra.MaximumNArgs(1),
		RunE:  cmdCleanup,
	}
	revertCmd = &cobra.Command{
		Use:   "revert <journal file>",
		Short: "Undo what an interrupted load created",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdRevert,
	}

	mdIndex int
	check   bool
	dryRun  bool
)

func init() {
	defaults := settings.Defaults()
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&args.MongoURI, "mongo-uri", defaults.MongoURI, "MongoDB connection string")
	flags.StringVar(&args.Database, "database", defaults.Database, "Database holding the projects")
	flags.IntVar(&args.ChunkSize, "chunk-size", defaults.ChunkSize, "Chunk size of stored files in bytes")
	flags.StringVar(&args.JournalDir, "journal-dir", defaults.JournalDir, "Directory for load journals (empty disables them)")
	flags.StringVar(&args.LogDir, "log-dir", "", "Directory for log files (default: console only)")
	flags.StringVar(&args.Policy, "policy", "", "Answer to every duplicate: ask, conserve or overwrite (default: ask)")
	flags.BoolVarP(&args.Force, "force", "y", false, "Skip confirmations")
	flags.StringVar(&args.EnvFile, "env-file", "", "Read settings from this file before the environment")
	flags.BoolVar(&args.Verbose, "verbose", false, "Enable verbose logging")
	flags.BoolVar(&args.Debug, "debug", false, "Enable debug mode")

	renameFileCmd.Flags().IntVar(&mdIndex, "md", engine.ProjectScope, "Index of the MD owning the file (default: the project)")
	findCmd.Flags().BoolVar(&check, "check", false, "Also list broken references of the project")
	cleanupCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only list the orphans")

	rootCmd.AddCommand(loadCmd, publishCmd, unpublishCmd, deleteCmd, renameFileCmd, findCmd, cleanupCmd, revertCmd)
	rootCmd.Version = defaults.Version
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// loadSettings applies the environment under the explicit flags
func loadSettings(cmd *cobra.Command, _ []string) error {
	flagged := *args
	if err := settings.Load(args); err != nil {
		return err
	}

	restore := map[string]func(){
		"mongo-uri":   func() { args.MongoURI = flagged.MongoURI },
		"database":    func() { args.Database = flagged.Database },
		"chunk-size":  func() { args.ChunkSize = flagged.ChunkSize },
		"journal-dir": func() { args.JournalDir = flagged.JournalDir },
		"log-dir":     func() { args.LogDir = flagged.LogDir },
		"policy":      func() { args.Policy = flagged.Policy },
		"force":       func() { args.Force = flagged.Force },
		"verbose":     func() { args.Verbose = flagged.Verbose },
		"debug":       func() { args.Debug = flagged.Debug },
	}
	for name, apply := range restore {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	return settings.Validate(args)
}

func newLogger(args *settings.Arguments) (*zap.SugaredLogger, error) {
	var config zap.Config
	if args.Debug {
		config = zap.NewDevelopmentConfig()
		config.OutputPaths = []string{"stdout"}
	} else {
		config = zap.NewProductionConfig()
	}
	if args.Verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	if args.LogDir != "" {
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		config.OutputPaths = append(config.OutputPaths, filepath.Join(args.LogDir, fmt.Sprintf("%s_mddb.log", timestamp)))
	}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return logger.Sugar(), nil
}

// run connects to the database, wires the services and hands them to fn.
// SIGINT and SIGTERM stop loads at the next safe point.
func run(cmd *cobra.Command, fn func(ctx context.Context, services *directors.ServiceManager) error) error {
	ctx := cmd.Context()
	logger, err := newLogger(args)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := engine.ConnectMongoStore(ctx, args.MongoURI, args.Database, int32(args.ChunkSize), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Warnf("Failed to disconnect: %v", err)
		}
	}()

	journal := engine.NewJournal(helpers.NewRunID(), args.JournalDir)
	defer journal.Close()

	var prompter engine.Prompter
	if helpers.IsTerminal(os.Stdin) {
		prompter = helpers.NewConsolePrompter()
	}
	db := engine.NewDatabase(store, journal, prompter, logger)

	interrupts := helpers.WatchInterrupts(logger)
	defer interrupts.Stop()
	db.SetAbortPredicate(interrupts.Interrupted)

	if err := db.Bootstrap(ctx); err != nil {
		return err
	}

	directors.InitServiceManager(
		directors.NewProjectService(db, args, logger),
		directors.NewCleanupService(db, args, logger),
		logger,
	)
	return fn(ctx, directors.GetServiceManager())
}

func cmdLoad(cmd *cobra.Command, a []string) error {
	manifest, err := directors.LoadManifest(a[0])
	if err != nil {
		return err
	}
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		project, err := services.ProjectService.Load(ctx, manifest)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), project.Accession())
		return nil
	})
}

func cmdPublish(cmd *cobra.Command, a []string, published bool) error {
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		return services.ProjectService.Publish(ctx, a[0], published)
	})
}

func cmdDelete(cmd *cobra.Command, a []string) error {
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		deleted, err := services.ProjectService.Delete(ctx, a[0])
		if err == nil && !deleted {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing was deleted")
		}
		return err
	})
}

func cmdRenameFile(cmd *cobra.Command, a []string) error {
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		return services.ProjectService.RenameFile(ctx, a[0], a[1], a[2], mdIndex)
	})
}

func cmdFind(cmd *cobra.Command, a []string) error {
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		document, key, err := services.ProjectService.Find(ctx, a[0])
		if err != nil {
			return err
		}
		if document == nil {
			return engine.NotFound.New("%s", a[0])
		}
		out := cmd.OutOrStdout()
		if err := directors.WriteDocument(out, key, document); err != nil {
			return err
		}
		if !check || key != engine.ProjectsKey {
			return nil
		}

		reports, err := services.ProjectService.Inconsistencies(ctx, a[0])
		if err != nil {
			return err
		}
		directors.WriteInconsistencies(out, reports)
		return nil
	})
}

func cmdCleanup(cmd *cobra.Command, a []string) error {
	key := directors.AllOrphans
	if len(a) == 1 {
		key = a[0]
	}
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		if !dryRun {
			_, err := services.CleanupService.DeleteOrphans(ctx, key)
			return err
		}
		orphans, err := services.CleanupService.FindOrphans(ctx, key)
		if err != nil {
			return err
		}
		directors.WriteOrphans(cmd.OutOrStdout(), orphans)
		return nil
	})
}

func cmdRevert(cmd *cobra.Command, a []string) error {
	return run(cmd, func(ctx context.Context, services *directors.ServiceManager) error {
		return services.ProjectService.Revert(ctx, a[0])
	})
}
