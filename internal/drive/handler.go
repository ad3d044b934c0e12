package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// folderFinder resolves a folder path; the Drive service implements it.
type folderFinder interface {
	FindFolderByPath(ctx context.Context, path string) (string, error)
}

type Handler struct {
	source   FileSource
	importer *Importer
}

func NewHandler(source FileSource, importer *Importer) *Handler {
	return &Handler{
		source:   source,
		importer: importer,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods("GET")
	router.HandleFunc("/api/drive/import", h.ImportFile).Methods("POST")
	router.HandleFunc("/api/drive/import/folder", h.ImportFolder).Methods("POST")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")

	if folderPath := query.Get("path"); folderPath != "" {
		finder, ok := h.source.(folderFinder)
		if !ok {
			http.Error(w, "folder paths are not supported", http.StatusBadRequest)
			return
		}
		var err error
		folderID, err = finder.FindFolderByPath(r.Context(), folderPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	files, err := h.source.ListFiles(r.Context(), folderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) ImportFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	n, err := h.importer.Import(r.Context(), fileID)
	if err != nil {
		http.Error(w, fmt.Sprintf("import failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "records": n})
}

func (h *Handler) ImportFolder(w http.ResponseWriter, r *http.Request) {
	folderID := r.URL.Query().Get("folderId")
	if folderID == "" {
		http.Error(w, "folderId parameter is required", http.StatusBadRequest)
		return
	}

	n, err := h.importer.ImportFolder(r.Context(), folderID)
	if err != nil {
		http.Error(w, fmt.Sprintf("import failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "records": n})
}
