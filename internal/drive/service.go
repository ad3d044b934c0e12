package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// FileSource is the part of Drive the downloader needs.
type FileSource interface {
	ListFiles(ctx context.Context, folderID string) ([]*File, error)
	GetFile(ctx context.Context, fileID string) (*File, error)
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
}

type Service struct {
	srv *drive.Service
}

// NewService authenticates with a service-account JSON key.
func NewService(ctx context.Context, credentialsJSON []byte) (*Service, error) {
	config, err := google.JWTConfigFromJSON(credentialsJSON, drive.DriveReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w", err)
	}

	srv, err := drive.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}

	return &Service{srv: srv}, nil
}

// NewServiceFromFile reads the service-account key from path.
func NewServiceFromFile(ctx context.Context, path string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	return NewService(ctx, data)
}

type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	ModifiedTime string `json:"modifiedTime,omitempty"`
	Size         int64  `json:"size,string,omitempty"`
}

func fromDrive(f *drive.File) *File {
	return &File{
		ID:           f.Id,
		Name:         f.Name,
		MimeType:     f.MimeType,
		ModifiedTime: f.ModifiedTime,
		Size:         f.Size,
	}
}

func (s *Service) ListFiles(ctx context.Context, folderID string) ([]*File, error) {
	if folderID == "" {
		folderID = "root"
	}

	var files []*File
	err := s.srv.Files.List().
		Q(fmt.Sprintf("'%s' in parents and trashed=false", folderID)).
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime, size)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				files = append(files, fromDrive(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve files: %w", err)
	}
	return files, nil
}

func (s *Service) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := s.srv.Files.Get(fileID).Fields("id, name, mimeType, modifiedTime, size").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to get file %s: %w", fileID, err)
	}
	return fromDrive(f), nil
}

func (s *Service) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	resp, err := s.srv.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return fmt.Errorf("unable to download file: %w", err)
	}
	defer resp.Body.Close()

	_, err = io.Copy(w, resp.Body)
	return err
}

func (s *Service) FindFolderByPath(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "root", nil
	}

	currentID := "root"
	for _, folder := range strings.Split(path, "/") {
		if folder == "" {
			continue
		}

		result, err := s.srv.Files.List().
			Q(fmt.Sprintf("'%s' in parents and name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false",
				currentID, strings.ReplaceAll(folder, "'", `\'`))).
			Fields("files(id, name)").
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("error finding folder %s: %w", folder, err)
		}

		if len(result.Files) == 0 {
			return "", fmt.Errorf("folder not found: %s", folder)
		}

		currentID = result.Files[0].Id
	}

	return currentID, nil
}

var _ FileSource = (*Service)(nil)
