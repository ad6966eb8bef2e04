package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/fraud-detection/internal/config"
	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/gcsuploader"
	infraBQ "github.com/dvloznov/fraud-detection/internal/infra/bigquery"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/metrics"
	"github.com/dvloznov/fraud-detection/internal/narrator"
	"github.com/dvloznov/fraud-detection/internal/pipeline"
	"github.com/dvloznov/fraud-detection/internal/report"
	"github.com/dvloznov/fraud-detection/internal/runs"
	"github.com/dvloznov/fraud-detection/internal/runs/inmemory"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid environment: %v\n", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "train":
		err = runTrain(cfg, os.Args[2:])
	case "predict":
		err = runPredict(cfg, os.Args[2:])
	case "peek":
		err = runPeek(cfg, os.Args[2:])
	case "runs":
		err = runList(cfg, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		var missing *domain.MissingInputError
		if errors.As(err, &missing) {
			fmt.Fprintf(os.Stderr, "Error: %s is missing: %s\n", missing.What, missing.Path)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Fraud Detection CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  train     Split the dataset, train the classifier, evaluate and save it")
	fmt.Println("  predict   Score a CSV of transactions with a saved model")
	fmt.Println("  peek      Show fraud and legitimate records of a CSV")
	fmt.Println("  runs      List recorded training runs (needs -project)")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nSettings can also be given as FRAUD_* environment variables.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// parseConfig binds the shared flags, parses args and validates the result.
func parseConfig(name string, cfg config.Config, args []string, extra func(*flag.FlagSet)) (config.Config, zerolog.Logger, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	config.BindFlags(fs, &cfg)
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)
	cfg.Resolve()

	log := logger.NewWithLevel(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return cfg, log, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, log, nil
}

func runTrain(base config.Config, args []string) error {
	cfg, log, err := parseConfig("train", base, args, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	deps := pipeline.Deps{
		Out:     os.Stdout,
		Metrics: metrics.NewPrometheusCollector("fraud_detection"),
	}
	if cfg.IsRemoteArchive() || cfg.ModelBucket != "" {
		deps.Storage = gcsuploader.NewGCSStorageService()
	}

	if cfg.Project != "" {
		repo, err := infraBQ.NewTrainingRunRepository(ctx, cfg.Project, cfg.Dataset)
		if err != nil {
			return err
		}
		defer repo.Close()
		deps.Recorder = repo
	} else {
		deps.Recorder = inmemory.NewStore()
	}

	if cfg.Narrate {
		n, err := narrator.NewGeminiNarrator(ctx, cfg.Project, cfg.NarratorModel)
		if err != nil {
			log.Warn().Err(err).Msg("Narration disabled")
		} else {
			deps.Narrator = n
		}
	}

	log.Info().
		Str("assets", cfg.AssetRoot).
		Str("archive", cfg.Archive).
		Bool("ledger", cfg.Project != "").
		Msg("Starting training job")

	state, err := pipeline.RunTrainingJob(ctx, cfg, deps)
	if err != nil {
		return err
	}
	fmt.Printf("Training run %s completed successfully.\n", state.RunID)
	return nil
}

func runPredict(base config.Config, args []string) error {
	var (
		dataPath string
		rows     int
	)
	cfg, log, err := parseConfig("predict", base, args, func(fs *flag.FlagSet) {
		fs.StringVar(&dataPath, "data", "", "CSV to score (defaults to -test)")
		fs.IntVar(&rows, "n", 10, "Rows to print")
	})
	if err != nil {
		return err
	}
	if dataPath == "" {
		dataPath = cfg.TestPath
	}

	ctx := logger.WithContext(context.Background(), log)
	scored, err := pipeline.ScoreFile(ctx, cfg.ModelPath, dataPath)
	if err != nil {
		return err
	}
	report.Header(os.Stdout, "Predictions")
	return report.PrintPredictions(os.Stdout, scored, cfg.Trainer.Label, rows)
}

func runPeek(base config.Config, args []string) error {
	var (
		dataPath string
		rows     int
		fraud    string
	)
	cfg, _, err := parseConfig("peek", base, args, func(fs *flag.FlagSet) {
		fs.StringVar(&dataPath, "data", "", "CSV to inspect (defaults to -dataset)")
		fs.IntVar(&rows, "n", 5, "Records to show per class")
		fs.StringVar(&fraud, "fraud", "", "Only show fraud (true) or legitimate (false) records")
	})
	if err != nil {
		return err
	}
	if dataPath == "" {
		dataPath = cfg.DatasetPath
	}

	ds, err := dataset.Load(dataPath)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d records, %d fraudulent\n", dataPath, len(ds), ds.FraudCount())

	if fraud == "" {
		report.InspectRecords(os.Stdout, ds, rows)
		return nil
	}
	want, err := strconv.ParseBool(fraud)
	if err != nil {
		return fmt.Errorf("-fraud: %w", err)
	}
	for _, r := range ds.Filter(want, rows) {
		r.Dump(os.Stdout)
	}
	return nil
}

func runList(base config.Config, args []string) error {
	var (
		status, since string
		limit         int
	)
	cfg, log, err := parseConfig("runs", base, args, func(fs *flag.FlagSet) {
		fs.StringVar(&status, "status", "", "Only list runs with this status (RUNNING, SUCCESS, FAILED)")
		fs.StringVar(&since, "since", "", "Only list runs started on or after this date (YYYY-MM-DD)")
		fs.IntVar(&limit, "limit", 20, "Maximum runs to list")
	})
	if err != nil {
		return err
	}
	if cfg.Project == "" {
		return errors.New("runs: -project is required")
	}
	filter := runs.Filter{Status: runs.RunStatus(status), Limit: limit}
	if since != "" {
		if filter.Since, err = civil.ParseDate(since); err != nil {
			return fmt.Errorf("-since: %w", err)
		}
	}

	ctx := logger.WithContext(context.Background(), log)
	repo, err := infraBQ.NewTrainingRunRepository(ctx, cfg.Project, cfg.Dataset)
	if err != nil {
		return err
	}
	defer repo.Close()

	list, err := repo.List(ctx, filter)
	if err != nil {
		return err
	}
	return report.PrintRuns(os.Stdout, list)
}
