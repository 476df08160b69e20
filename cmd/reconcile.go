package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-indexer/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply face renames and deletions to every derived artifact",
	Long: `Apply identity corrections to the face registry and to every artifact that
references the affected faces: map data, raw recognition JSON, time series,
occurrence metadata, caption tracks and content search documents.

Instructions come from --rename/--delete flags or from a JSON file:
  {"renames":[{"faceId":"...","celeb":"Jane Doe","updateFrom":"Unknown 7"}],
   "deletes":[{"faceId":"..."}]}

Examples:
  face-indexer reconcile --rename 3f1c...=Jane Doe
  face-indexer reconcile --delete 3f1c... --content-id video-42
  face-indexer reconcile --file corrections.json --category celeb`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringSlice("rename", nil, "Rename as faceId=Name (repeatable)")
	reconcileCmd.Flags().StringSlice("delete", nil, "Face id to delete (repeatable)")
	reconcileCmd.Flags().String("file", "", "JSON instruction file")
	reconcileCmd.Flags().String("content-id", "", "Content item to process first")
	reconcileCmd.Flags().String("category", "", "Artifact category (default RECONCILE_CATEGORY)")
	reconcileCmd.MarkFlagsMutuallyExclusive("file", "rename")
	reconcileCmd.MarkFlagsMutuallyExclusive("file", "delete")
}

// parseRenames parses faceId=Name pairs.
func parseRenames(values []string) ([]reconcile.Rename, error) {
	renames := make([]reconcile.Rename, 0, len(values))
	for _, v := range values {
		faceID, name, ok := strings.Cut(v, "=")
		faceID, name = strings.TrimSpace(faceID), strings.TrimSpace(name)
		if !ok || faceID == "" || name == "" {
			return nil, fmt.Errorf("invalid rename %q, expected faceId=Name", v)
		}
		renames = append(renames, reconcile.Rename{FaceID: faceID, Celeb: name})
	}
	return renames, nil
}

func loadReconcileRequest(cmd *cobra.Command) (reconcile.Request, error) {
	var req reconcile.Request
	if file := mustGetString(cmd, "file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return req, fmt.Errorf("read instruction file: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("parse instruction file: %w", err)
		}
	} else {
		renames, err := parseRenames(mustGetStringSlice(cmd, "rename"))
		if err != nil {
			return req, err
		}
		req.Renames = renames
		for _, id := range mustGetStringSlice(cmd, "delete") {
			req.Deletes = append(req.Deletes, reconcile.Delete{FaceID: strings.TrimSpace(id)})
		}
	}
	if v := mustGetString(cmd, "content-id"); v != "" {
		req.ContentID = v
	}
	if v := mustGetString(cmd, "category"); v != "" {
		req.Category = v
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req, err := loadReconcileRequest(cmd)
	if err != nil {
		return err
	}
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

	res, err := b.reconciler().Reconcile(ctx, req)
	if err != nil && !errors.Is(err, reconcile.ErrArtifactsFailed) {
		return fmt.Errorf("reconcile failed: %w", err)
	}
	logger.Info("reconcile finished",
		zap.Int("contents", len(res.Contents)),
		zap.Int("failed", res.Failed),
		zap.Bool("registry_updated", res.RegistryUpdated))

	if mustGetBool(cmd, "json") {
		if jerr := outputJSON(res); jerr != nil {
			return jerr
		}
	} else {
		printReconcileResult(res)
	}
	return err
}

func printReconcileResult(res *reconcile.Result) {
	rows := make([][]string, 0, len(res.Artifacts))
	for _, a := range res.Artifacts {
		status := "unchanged"
		switch {
		case a.Error != "":
			status = "failed: " + a.Error
		case a.Changed:
			status = "updated"
		}
		rows = append(rows, []string{a.ContentID, a.Artifact, status})
	}
	if len(rows) > 0 {
		fmt.Println(renderTable([]string{"Content", "Artifact", "Status"}, rows, nil))
	}
	fmt.Printf("Category: %s, contents: %d, failed artifacts: %d, registry updated: %t\n",
		res.Category, len(res.Contents), res.Failed, res.RegistryUpdated)
}
