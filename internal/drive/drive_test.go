package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

type fakeSource struct {
	files    []*File
	contents map[string]string
}

func (f *fakeSource) ListFiles(context.Context, string) ([]*File, error) { return f.files, nil }

func (f *fakeSource) GetFile(_ context.Context, id string) (*File, error) {
	for _, file := range f.files {
		if file.ID == id {
			return file, nil
		}
	}
	return nil, fmt.Errorf("file %s not found", id)
}

func (f *fakeSource) DownloadFile(_ context.Context, id string, w io.Writer) error {
	_, err := io.WriteString(w, f.contents[id])
	return err
}

type fakeHistory struct {
	saved []domain.DemandRecord
}

func (f *fakeHistory) ListDemand(context.Context, domain.HistoryFilter) ([]domain.DemandRecord, error) {
	return f.saved, nil
}

func (f *fakeHistory) SaveDemand(_ context.Context, records []domain.DemandRecord) (int, error) {
	f.saved = append(f.saved, records...)
	return len(records), nil
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		files: []*File{
			{ID: "1", Name: "north.csv"},
			{ID: "2", Name: "notes.txt"},
			{ID: "3", Name: "south.csv"},
		},
		contents: map[string]string{
			"1": "sku,timestamp,quantity\nA,2024-01-01,4\nA,2024-01-02,5\n",
			"2": "not history",
			"3": "sku,timestamp,quantity\nB,2024-01-01,1\n",
		},
	}
}

func TestImporter(t *testing.T) {
	ctx := context.Background()
	repo := &fakeHistory{}
	im := NewImporter(NewDownloader(newFakeSource(), t.TempDir()), repo)

	records, err := im.Fetch(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = im.Fetch(ctx, "2")
	assert.ErrorContains(t, err, "not a CSV or XLSX")

	n, err := im.ImportFolder(ctx, "folder")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, repo.saved, 3)

	_, err = NewImporter(NewDownloader(newFakeSource(), t.TempDir()), nil).Import(ctx, "1")
	assert.Error(t, err)
}

func TestDownloaderRequiresDir(t *testing.T) {
	_, err := NewDownloader(newFakeSource(), "").DownloadFile(context.Background(), "1")
	assert.ErrorContains(t, err, "download dir")
}

func TestHandler(t *testing.T) {
	source := newFakeSource()
	repo := &fakeHistory{}
	h := NewHandler(source, NewImporter(NewDownloader(source, t.TempDir()), repo))
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drive/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var files []File
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 3)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/drive/files?path=a/b", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drive/import", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drive/import?fileId=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":1`)
	assert.Len(t, repo.saved, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/drive/import?fileId=2", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
