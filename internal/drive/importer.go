package drive

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
	"github.com/AniruddhAgrahari/smartstock/internal/history"
	"github.com/AniruddhAgrahari/smartstock/internal/repository"
)

// Importer loads demand history exports from Drive.
type Importer struct {
	downloader *Downloader
	repo       repository.HistoryRepository
}

// NewImporter creates an importer. repo may be nil when records are only
// fetched, never stored.
func NewImporter(downloader *Downloader, repo repository.HistoryRepository) *Importer {
	return &Importer{downloader: downloader, repo: repo}
}

// Fetch downloads and parses one history file.
func (im *Importer) Fetch(ctx context.Context, fileID string) ([]domain.DemandRecord, error) {
	path, err := im.downloader.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	records, err := history.LoadRecordsFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse drive file %s: %w", fileID, err)
	}
	return records, nil
}

// Import fetches one history file and stores its records.
func (im *Importer) Import(ctx context.Context, fileID string) (int, error) {
	if im.repo == nil {
		return 0, fmt.Errorf("no history repository configured")
	}
	records, err := im.Fetch(ctx, fileID)
	if err != nil {
		return 0, err
	}
	n, err := im.repo.SaveDemand(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("failed to store drive file %s: %w", fileID, err)
	}
	log.Info().Str("file_id", fileID).Int("records", n).Msg("imported demand history")
	return n, nil
}

// ImportFolder imports every CSV and XLSX export of a folder.
func (im *Importer) ImportFolder(ctx context.Context, folderID string) (int, error) {
	if im.repo == nil {
		return 0, fmt.Errorf("no history repository configured")
	}
	paths, err := im.downloader.DownloadFolder(ctx, folderID)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, path := range paths {
		records, err := history.LoadRecordsFile(path)
		if err != nil {
			return total, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		n, err := im.repo.SaveDemand(ctx, records)
		if err != nil {
			return total, fmt.Errorf("failed to store %s: %w", path, err)
		}
		total += n
	}
	log.Info().Str("folder_id", folderID).Int("files", len(paths)).Int("records", total).Msg("imported demand history folder")
	return total, nil
}
