package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/AniruddhAgrahari/smartstock/internal/domain"
)

const defaultArchivePrefix = "plans"

// PlanArchive stores plan results as JSON objects keyed by run ID.
type PlanArchive struct {
	store  ObjectStorage
	prefix string
}

// NewPlanArchive archives under prefix (default "plans").
func NewPlanArchive(store ObjectStorage, prefix string) *PlanArchive {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	return &PlanArchive{store: store, prefix: prefix}
}

// Key returns the object key of a run. Runs are grouped by creation date.
func (a *PlanArchive) Key(res *domain.PlanResult) string {
	return path.Join(a.prefix, res.CreatedAt.UTC().Format("2006/01/02"), res.RunID+".json")
}

// Save uploads res and returns its key.
func (a *PlanArchive) Save(ctx context.Context, res *domain.PlanResult) (string, error) {
	payload, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode plan %s: %w", res.RunID, err)
	}
	key := a.Key(res)
	if err := a.store.UploadObject(ctx, key, payload); err != nil {
		return "", err
	}
	return key, nil
}

// Load reads an archived result back.
func (a *PlanArchive) Load(ctx context.Context, key string) (*domain.PlanResult, error) {
	payload, err := a.store.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	var res domain.PlanResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("failed to decode archived plan %s: %w", key, err)
	}
	return &res, nil
}

// List returns the archived objects, oldest first.
func (a *PlanArchive) List(ctx context.Context) ([]ObjectInfo, error) {
	return a.store.ListObjects(ctx, a.prefix+"/")
}
