package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"

	"github.com/raaihank/redaction-review/internal/cache"
	"github.com/raaihank/redaction-review/internal/config"
	"github.com/raaihank/redaction-review/internal/ingest"
	"github.com/raaihank/redaction-review/internal/logger"
	"github.com/raaihank/redaction-review/internal/masking"
	"github.com/raaihank/redaction-review/internal/redaction"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Configuration file path")
		inputFile    = flag.String("input", "", "Detection file to ingest (CSV, Parquet, or JSON case fixture)")
		batchSize    = flag.Int("batch-size", 0, "Records between progress reports (defaults to ingest.batch_size)")
		maxErrors    = flag.Int("max-errors", 100, "Validation errors to keep in the report")
		validateOnly = flag.Bool("validate-only", false, "Only validate the file, don't build documents")
		export       = flag.Bool("export", false, "Print each document's masked export after loading")
		clearCache   = flag.Bool("clear-cache", false, "Remove all cached segments from Redis and exit")
		cacheStats   = flag.Bool("cache-stats", false, "Show segment cache statistics and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*clearCache && !*cacheStats {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input configs/case.json\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input detections.csv --validate-only\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input detections.parquet --export\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --cache-stats\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --clear-cache\n", os.Args[0])
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling ingest...")
		cancel()
	}()

	if *clearCache || *cacheStats {
		if err := manageCache(ctx, cfg, log, *clearCache); err != nil {
			log.Fatal("Cache operation failed", zap.Error(err))
		}
		return
	}

	size := cfg.Ingest.BatchSize
	if *batchSize > 0 {
		size = *batchSize
	}
	loader := ingest.NewLoader(&ingest.Config{
		BatchSize: size,
		MaxErrors: *maxErrors,
	}, log.WithComponent("ingest").Logger)

	log.Info("Reading detection file", zap.String("input", *inputFile), zap.Bool("validate_only", *validateOnly))

	if *validateOnly {
		_, result, err := loader.Read(ctx, *inputFile)
		if err != nil {
			log.Fatal("Validation failed", zap.Error(err))
		}
		printResult(result)
		if result.InvalidRecords > 0 {
			os.Exit(2)
		}
		return
	}

	store := redaction.NewStore()
	result, err := loader.Load(ctx, *inputFile, store)
	if err != nil {
		log.Fatal("Ingest failed", zap.Error(err))
	}

	printResult(result)
	printDocuments(store)

	if *export {
		masker, err := masking.New(cfg.Masking, log.WithComponent("masking").Logger)
		if err != nil {
			log.Fatal("Failed to create masker", zap.Error(err))
		}
		for _, doc := range store.List() {
			res := masker.ApplyDocument(doc)
			fmt.Printf("\n== %s ==\n", doc.FileName)
			for _, p := range res.Paragraphs {
				fmt.Println(p)
				fmt.Println()
			}
		}
	}
}

// manageCache clears the segment cache or prints its statistics
func manageCache(ctx context.Context, cfg *config.Config, log *logger.Logger, reset bool) error {
	if !cfg.Cache.Enabled {
		return fmt.Errorf("segment cache is disabled in configuration")
	}
	segmentCache, err := cache.NewSegmentCache(&cfg.Cache, log.WithComponent("cache").Logger)
	if err != nil {
		return err
	}
	defer segmentCache.Close()

	if reset {
		return segmentCache.Clear(ctx)
	}

	stats, err := segmentCache.GetStats(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Keys", "Memory (bytes)", "Hits", "Misses", "Hit Rate"})
	table.Append([]string{
		strconv.FormatInt(stats.TotalKeys, 10),
		strconv.FormatInt(stats.MemoryUsage, 10),
		strconv.FormatInt(stats.Hits, 10),
		strconv.FormatInt(stats.Misses, 10),
		fmt.Sprintf("%.1f%%", stats.HitRate),
	})
	table.Render()
	return nil
}

func printResult(result *ingest.Result) {
	fmt.Printf("\nRecords: %d total, %d valid, %d invalid (%s)\n",
		result.TotalRecords, result.ValidRecords, result.InvalidRecords, result.Duration)
	if result.Reviewer != nil {
		fmt.Printf("Current user: %s (badge %s)\n", result.Reviewer.Name, result.Reviewer.Badge)
	}

	if len(result.Errors) == 0 {
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Row", "Field", "Value", "Error"})
	for _, verr := range result.Errors {
		table.Append([]string{
			strconv.FormatInt(verr.Row, 10),
			verr.Field,
			verr.Value,
			verr.Message,
		})
	}
	table.Render()
}

func printDocuments(store *redaction.Store) {
	info := store.Case()
	if info.CaseNumber != "" {
		fmt.Printf("\nCase %s (%s)\n", info.CaseNumber, info.Status)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "File", "Detected", "Redactions", "Approved", "Pending", "Rejected", "Confidence"})
	for _, doc := range store.List() {
		counts := map[redaction.Status]int{}
		for _, r := range doc.Redactions {
			counts[r.Status]++
		}
		table.Append([]string{
			strconv.FormatInt(doc.ID, 10),
			doc.FileName,
			strconv.Itoa(doc.RedactionsDetected),
			strconv.Itoa(len(doc.Redactions)),
			strconv.Itoa(counts[redaction.Approved]),
			strconv.Itoa(counts[redaction.Pending]),
			strconv.Itoa(counts[redaction.Rejected]),
			fmt.Sprintf("%.1f%%", doc.ConfidenceLevel),
		})
	}
	table.SetFooter([]string{"", "Total", "", strconv.Itoa(info.TotalRedactions), "", "", "", ""})
	table.Render()
}
