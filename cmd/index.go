package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/aggregate"
	"github.com/kozaktomas/face-indexer/internal/facematch"
	"github.com/kozaktomas/face-indexer/internal/partition"
	"github.com/kozaktomas/face-indexer/internal/pipeline"
	"github.com/kozaktomas/face-indexer/internal/storage"
)

// maxListedItems caps the unprocessed items printed after a run.
const maxListedItems = 20

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index a detection list into the face collection",
	Long: `Index every detected face of a detection list into the recognition collection.

The list is split into partitions that are indexed in parallel. Each partition
packs up to one composite grid of face crops into a single recognition call and
checkpoints after every call. The partition results are merged into
<prefix>/faces.json.

The detection list is read from --detections (an object key in the bucket) or
from --file (a local JSON file, uploaded to <prefix>/detections.json first).

Examples:
  face-indexer index --prefix runs/2026-10-18 --detections runs/2026-10-18/detections.json
  face-indexer index --prefix runs/local --file detections.json --json`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().String("bucket", "", "Bucket holding the source crops (default STORAGE_BUCKET)")
	indexCmd.Flags().String("prefix", "", "Prefix for partition, face and result objects")
	indexCmd.Flags().String("detections", "", "Object key of the detection list")
	indexCmd.Flags().String("file", "", "Local detection list file")
	indexCmd.Flags().String("user-id", "", "User id stored on every registered face")
	indexCmd.Flags().Int("concurrency", 0, "Maximum parallel partitions (default INDEXER_MAX_CONCURRENCY)")
	indexCmd.MarkFlagsMutuallyExclusive("detections", "file")
	indexCmd.MarkFlagsOneRequired("detections", "file")
	_ = indexCmd.MarkFlagRequired("prefix")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if n := mustGetInt(cmd, "concurrency"); n > 0 {
		cfg.Indexer.MaxConcurrency = n
	}
	bucket := stringOr(cmd, "bucket", cfg.Storage.Bucket)
	prefix := mustGetString(cmd, "prefix")
	jsonOutput := mustGetBool(cmd, "json")

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.requireRecognizer(); err != nil {
		return err
	}

	key := mustGetString(cmd, "detections")
	if file := mustGetString(cmd, "file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read detection list: %w", err)
		}
		key = storage.Join(prefix, "detections.json")
		if err := storage.Put(ctx, b.store, bucket, key, data); err != nil {
			return fmt.Errorf("upload detection list: %w", err)
		}
	}
	items, err := partition.LoadDetections(ctx, b.store, bucket, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("detection list %s/%s not found", bucket, key)
	}
	if err != nil {
		return err
	}

	bar := newIndexProgressBar(len(items), cfg.Indexer.MaxConcurrency, cfg.Indexer.MaxFacesPerIndex, jsonOutput)
	p := b.pipeline(pipeline.WithProgress(bar.report))

	summary, err := p.Run(ctx, pipeline.Request{
		Bucket: bucket,
		Prefix: prefix,
		Items:  items,
		UserID: mustGetString(cmd, "user-id"),
	})
	bar.finish()
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}
	logger.Info("indexing finished",
		zap.String("output", summary.Output),
		zap.Int("processed", summary.Processed),
		zap.Int("unprocessed", summary.Unprocessed))

	if jsonOutput {
		return outputJSON(summary)
	}
	printIndexSummary(summary)
	return nil
}

// indexProgress renders the mean progress of all partitions.
type indexProgress struct {
	mu       sync.Mutex
	bar      *progressbar.ProgressBar
	progress map[int]int
}

func newIndexProgressBar(items, maxConcurrency, maxFacesPerIndex int, jsonOutput bool) *indexProgress {
	p := &indexProgress{progress: make(map[int]int)}
	if jsonOutput || items == 0 || !isTerminal(os.Stderr) {
		return p
	}
	size := partition.ItemsPerIterator(items, maxConcurrency, maxFacesPerIndex)
	partitions := (items + size - 1) / size
	p.bar = progressbar.NewOptions(partitions*100,
		progressbar.OptionSetDescription(fmt.Sprintf("Indexing %d faces", items)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
	return p
}

func (p *indexProgress) report(update pipeline.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress[update.Partition] = update.Progress
	if p.bar == nil {
		return
	}
	total := 0
	for _, v := range p.progress {
		total += v
	}
	_ = p.bar.Set(total)
}

func (p *indexProgress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
}

func printIndexSummary(s *aggregate.Summary) {
	fmt.Println(renderTable(
		[]string{"Total", "Processed", "Unprocessed", "Undetected", "Unindexed"},
		[][]string{{
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Processed),
			strconv.Itoa(s.Unprocessed),
			strconv.Itoa(len(s.FaceUndetected)),
			strconv.Itoa(len(s.FaceUnindexed)),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Printf("Results written to %s\n", s.Output)

	unprocessed := append(append([]facematch.Item{}, s.FaceUndetected...), s.FaceUnindexed...)
	if len(unprocessed) == 0 {
		return
	}
	rows := make([][]string, 0, min(len(unprocessed), maxListedItems))
	for _, item := range unprocessed[:min(len(unprocessed), maxListedItems)] {
		reason := item.ErrorMessage
		if item.State() == facematch.ItemUndetected {
			reason = "no face detected"
		}
		rows = append(rows, []string{item.Name, item.Key, reason})
	}
	fmt.Println()
	fmt.Println(renderTable([]string{"Name", "Key", "Reason"}, rows, nil))
	if len(unprocessed) > maxListedItems {
		fmt.Printf("... and %d more (use --json for the full list)\n", len(unprocessed)-maxListedItems)
	}
}
