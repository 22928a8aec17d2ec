package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/heap-analysis/internal/hprof"
	"github.com/heap-analysis/internal/index"
	"github.com/heap-analysis/internal/repository"
	"github.com/heap-analysis/internal/storage"
	"github.com/heap-analysis/pkg/config"
	"github.com/heap-analysis/pkg/parallel"
	"github.com/heap-analysis/pkg/telemetry"
)

var (
	// Index command flags
	fromStorage  bool
	saveCatalog  bool
	rootKindsArg string
)

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index <dump> [dump...]",
	Short: "Build in-memory indexes over heap dumps",
	Long: `Build a compact in-memory index for each given HPROF heap dump and
print a summary of what was indexed.

Arguments are local file paths, or storage keys when --from-storage is
set (dumps are then fetched into the configured data directory first).
Dumps are indexed concurrently up to the configured worker count; each
individual index build is single-threaded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().BoolVar(&fromStorage, "from-storage", false, "Treat arguments as storage keys and fetch them first")
	indexCmd.Flags().BoolVar(&saveCatalog, "catalog", false, "Record build summaries in the dump catalog database")
	indexCmd.Flags().StringVar(&rootKindsArg, "root-kinds", "", "Comma-separated GC root kinds to index (default: all)")
}

// dumpResult is what one worker produces for one dump.
type dumpResult struct {
	idx      *index.Index
	duration time.Duration
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		logger.Warn("Failed to initialize telemetry: %v", err)
	} else {
		defer shutdown(ctx)
	}

	rootKinds, err := parseRootKinds(rootKindsArg)
	if err != nil {
		return err
	}

	paths := args
	if fromStorage {
		paths, err = fetchDumps(ctx, cfg, args)
		if err != nil {
			return err
		}
	}

	var catalog repository.SummaryRepository
	if saveCatalog {
		if !cfg.CatalogEnabled() {
			return fmt.Errorf("--catalog requires a configured database")
		}
		db, err := repository.NewGormDB(&cfg.Database)
		if err != nil {
			return err
		}
		catalog = repository.NewGormSummaryRepository(db)
	}

	pool := parallel.NewWorkerPool[string, dumpResult](
		parallel.DefaultPoolConfig().WithWorkers(cfg.Index.MaxWorker))

	results := pool.Execute(ctx, paths, func(ctx context.Context, path string) (dumpResult, error) {
		return indexDump(ctx, path, rootKinds)
	})

	failed := 0
	for i, res := range results {
		if res.Error != nil {
			failed++
			logger.Error("Indexing %s failed: %v", res.Input, res.Error)
			continue
		}

		printSummary(res.Input, res.Result)

		if catalog != nil {
			if err := saveSummary(ctx, catalog, args[i], res.Result); err != nil {
				logger.Warn("Failed to save catalog entry for %s: %v", res.Input, err)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d dumps failed to index", failed, len(results))
	}
	return nil
}

// fetchDumps downloads storage keys into the data directory and returns
// the local paths.
func fetchDumps(ctx context.Context, cfg *config.Config, keys []string) ([]string, error) {
	store, err := storage.New(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	paths := make([]string, len(keys))
	for i, key := range keys {
		localPath := filepath.Join(cfg.Index.DataDir, filepath.Base(key))
		logger.Info("Fetching %s", key)
		if err := store.DownloadFile(ctx, key, localPath); err != nil {
			return nil, err
		}
		paths[i] = localPath
	}
	return paths, nil
}

// indexDump builds the index for one local dump file.
func indexDump(ctx context.Context, path string, rootKinds []hprof.RootKind) (dumpResult, error) {
	ctx, span := otel.Tracer("heap-analysis/cli").Start(ctx, "index.dump")
	span.SetAttributes(attribute.String("dump.path", path))
	defer span.End()

	file, err := os.Open(path)
	if err != nil {
		return dumpResult{}, err
	}
	defer file.Close()

	stream, err := hprof.NewStreamReader(file)
	if err != nil {
		return dumpResult{}, err
	}

	start := time.Now()
	idx, err := index.Build(ctx, stream, &index.Options{
		RootKinds: rootKinds,
		Logger:    logger.WithField("dump", filepath.Base(path)),
	})
	if err != nil {
		return dumpResult{}, err
	}

	return dumpResult{idx: idx, duration: time.Since(start)}, nil
}

// parseRootKinds parses the --root-kinds flag. Empty means all kinds.
func parseRootKinds(arg string) ([]hprof.RootKind, error) {
	if arg == "" {
		return nil, nil
	}

	var kinds []hprof.RootKind
	for _, name := range strings.Split(arg, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind, ok := hprof.ParseRootKind(name)
		if !ok {
			return nil, fmt.Errorf("unknown root kind: %q", name)
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// printSummary logs what one build produced.
func printSummary(path string, res dumpResult) {
	idx := res.idx
	header := idx.Header()

	logger.Info("=== %s ===", path)
	logger.Info("  Version:          %s (id size %d)", header.Version, header.IDSize)
	logger.Info("  Classes:          %d", idx.ClassCount())
	logger.Info("  Instances:        %d", idx.InstanceCount())
	logger.Info("  Object arrays:    %d", idx.ObjectArrayCount())
	logger.Info("  Primitive arrays: %d", idx.PrimitiveArrayCount())
	logger.Info("  GC roots:         %d", len(idx.GcRoots()))
	logger.Info("  Wrapper classes:  %d", idx.PrimitiveWrapperTypes().Size())
	logger.Info("  Build time:       %v", res.duration)
}

// saveSummary records one build in the dump catalog.
func saveSummary(ctx context.Context, catalog repository.SummaryRepository, dumpKey string, res dumpResult) error {
	idx := res.idx
	header := idx.Header()

	return catalog.Save(ctx, &repository.IndexSummary{
		DumpKey:             dumpKey,
		HprofVersion:        string(header.Version),
		IdentifierSize:      header.IDSize,
		ClassCount:          idx.ClassCount(),
		InstanceCount:       idx.InstanceCount(),
		ObjectArrayCount:    idx.ObjectArrayCount(),
		PrimitiveArrayCount: idx.PrimitiveArrayCount(),
		RootCount:           len(idx.GcRoots()),
		TotalBytes:          int64(idx.TotalBytesRead()),
		BuildMillis:         res.duration.Milliseconds(),
	})
}
