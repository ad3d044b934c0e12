package drive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Downloader pulls history exports from Drive into a local directory.
type Downloader struct {
	source FileSource
	dir    string
}

// NewDownloader creates a new Downloader writing into dir.
func NewDownloader(source FileSource, dir string) *Downloader {
	return &Downloader{source: source, dir: dir}
}

func supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".csv" || ext == ".xlsx"
}

// DownloadFile fetches one CSV or XLSX file and returns its local path.
func (d *Downloader) DownloadFile(ctx context.Context, fileID string) (string, error) {
	f, err := d.source.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	if !supported(f.Name) {
		return "", fmt.Errorf("file %s is not a CSV or XLSX export", f.Name)
	}
	return d.fetch(ctx, f)
}

// DownloadFolder fetches every CSV and XLSX file in a folder.
func (d *Downloader) DownloadFolder(ctx context.Context, folderID string) ([]string, error) {
	files, err := d.source.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}

	var localPaths []string
	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if !supported(f.Name) {
			continue
		}
		path, err := d.fetch(ctx, f)
		if err != nil {
			return nil, err
		}
		localPaths = append(localPaths, path)
	}
	return localPaths, nil
}

func (d *Downloader) fetch(ctx context.Context, f *File) (string, error) {
	if d.dir == "" {
		return "", fmt.Errorf("download dir is required")
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	localPath := filepath.Join(d.dir, f.ID+"_"+filepath.Base(f.Name))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	if err := d.source.DownloadFile(ctx, f.ID, out); err != nil {
		out.Close()
		return "", fmt.Errorf("failed to download %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return localPath, nil
}
