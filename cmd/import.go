package cmd

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/database"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Register collection faces missing from the face registry",
	Long: `Page through every face stored in the recognition collection and register
the ones the face registry does not know yet. Known faces are left untouched.

Examples:
  face-indexer import
  face-indexer import --collection staging-faces --token <next-page-token>`,
	Args: cobra.NoArgs,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().String("collection", "", "Collection id (default RECOGNITION_COLLECTION)")
	importCmd.Flags().String("token", "", "Resume from this page token")
	importCmd.Flags().Int("max-pages", 0, "Stop after this many pages (0 = all)")
}

type importResult struct {
	Collection string `json:"collection"`
	Pages      int    `json:"pages"`
	Imported   int    `json:"imported"`
	NextToken  string `json:"nextToken,omitempty"`
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.requireRecognizer(); err != nil {
		return err
	}

	jsonOutput := mustGetBool(cmd, "json")
	maxPages := mustGetInt(cmd, "max-pages")
	res := importResult{Collection: stringOr(cmd, "collection", cfg.Recognition.Collection)}

	var bar *progressbar.ProgressBar
	if !jsonOutput && isTerminal(os.Stderr) {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Importing faces"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
		)
	}

	token := mustGetString(cmd, "token")
	for {
		next, n, err := database.ImportFaces(ctx, b.registry, b.recognizer, res.Collection, token)
		res.Imported += n
		if bar != nil {
			_ = bar.Add(n)
		}
		if err != nil {
			logger.Error("import stopped", zap.String("token", token), zap.Int("imported", res.Imported), zap.Error(err))
			return fmt.Errorf("import faces: %w", err)
		}
		res.Pages++
		token = next
		if token == "" || (maxPages > 0 && res.Pages >= maxPages) {
			break
		}
	}
	res.NextToken = token
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	logger.Info("import finished",
		zap.String("collection", res.Collection),
		zap.Int("pages", res.Pages),
		zap.Int("imported", res.Imported))

	if jsonOutput {
		return outputJSON(res)
	}
	fmt.Printf("Imported %d new faces from %d pages of collection %s\n", res.Imported, res.Pages, res.Collection)
	if res.NextToken != "" {
		fmt.Printf("More faces remain, resume with --token %s\n", res.NextToken)
	}
	return nil
}
