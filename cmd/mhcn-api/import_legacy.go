package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/rooms"
	"github.com/MarcoPoloResearchLab/madhatchatnet/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cipherImporter is the subset of rooms.Store used by the importer.
type cipherImporter interface {
	ImportCipher(ctx context.Context, name, blob string) error
}

type importReport struct {
	Imported int
	Skipped  int
	Failed   int
}

func newImportLegacyCommand() *cobra.Command {
	var sourceDir string
	cmd := &cobra.Command{
		Use:   "import-legacy",
		Short: "Copy <room>.json blobs from a legacy chatrooms directory into the configured storage",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := newServices(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			source, err := openLegacySource(sourceDir)
			if err != nil {
				return err
			}
			report, err := importLegacyRooms(ctx, source, app.rooms, app.logger)
			if err != nil {
				return err
			}
			app.logger.Info("legacy import finished",
				zap.Int("imported", report.Imported),
				zap.Int("skipped", report.Skipped),
				zap.Int("failed", report.Failed),
			)
			if report.Failed > 0 {
				return fmt.Errorf("%d rooms failed to import", report.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceDir, "from", "", "Legacy chatrooms directory")
	if err := cmd.MarkFlagRequired("from"); err != nil {
		panic(err)
	}
	return cmd
}

// openLegacySource opens an existing chats directory without creating it.
func openLegacySource(dir string) (*storage.FilesystemStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("legacy source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("legacy source %s is not a directory", dir)
	}
	return storage.NewFilesystemStore(dir)
}

// importLegacyRooms imports every room blob in source. Rooms that already exist are skipped.
func importLegacyRooms(ctx context.Context, source *storage.FilesystemStore, target cipherImporter, logger *zap.Logger) (importReport, error) {
	var report importReport
	names, err := source.List(ctx)
	if err != nil {
		return report, err
	}
	for _, name := range names {
		blob, err := source.Read(ctx, name)
		if err != nil {
			logger.Error("legacy room read failed", zap.String("room", name), zap.Error(err))
			report.Failed++
			continue
		}
		err = target.ImportCipher(ctx, name, string(blob))
		switch {
		case err == nil:
			report.Imported++
		case errors.Is(err, rooms.ErrRoomAlreadyExists):
			logger.Debug("legacy room already present", zap.String("room", name))
			report.Skipped++
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return report, err
		default:
			logger.Error("legacy room import failed", zap.String("room", name), zap.Error(err))
			report.Failed++
		}
	}
	return report, nil
}
