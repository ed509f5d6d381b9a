package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"json2video/types"
)

// AssetManager picks images from a local tagged library. tags.json maps a
// file name (relative to the library dir) to its tags; keys starting with "_"
// are notes and are skipped.
type AssetManager struct {
	dir         string
	tags        map[string][]string
	neverRepeat bool
	log         *zap.SugaredLogger

	mu        sync.Mutex
	usedInRun map[string]map[string]bool // runID -> files used
}

// NewAssetManager loads the tag index
func NewAssetManager(dir, tagsFile string, neverRepeat bool, logger *zap.Logger) (*AssetManager, error) {
	log := logger.Named("assets").Sugar()
	tags, err := loadTagsJSON(tagsFile, log)
	if err != nil {
		return nil, fmt.Errorf("load library tags: %w", err)
	}
	return &AssetManager{
		dir:         dir,
		tags:        tags,
		neverRepeat: neverRepeat,
		log:         log,
		usedInRun:   make(map[string]map[string]bool),
	}, nil
}

// Acquire selects the best matching image for the query's words. With
// never_repeat_in_same_video set, a file is handed out once per run.
func (am *AssetManager) Acquire(ctx context.Context, req Request) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	words := strings.Fields(strings.ToLower(req.Query))

	type scored struct {
		file  string
		score int
	}
	var candidates []scored

	am.mu.Lock()
	defer am.mu.Unlock()
	used := am.usedInRun[req.RunID]

	for file, fileTags := range am.tags {
		if am.neverRepeat && used[file] {
			continue
		}
		if !isImageFile(file) {
			continue
		}
		if score := matchScore(words, fileTags); score > 0 {
			candidates = append(candidates, scored{file, score})
		}
	}
	if len(candidates) == 0 {
		return Asset{}, types.ErrNoAsset
	}

	// best score first, file name breaks ties so a run is reproducible
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].file < candidates[j].file
	})
	pick := candidates[0]

	if am.neverRepeat {
		if used == nil {
			used = make(map[string]bool)
			am.usedInRun[req.RunID] = used
		}
		used[pick.file] = true
	}

	fullPath := filepath.Join(am.dir, pick.file)
	am.log.Infof("%s: picked %q (score: %d)", req.LayerID, pick.file, pick.score)
	return Asset{Path: fullPath}, nil
}

// Forget drops the usage record of a finished run
func (am *AssetManager) Forget(runID string) {
	am.mu.Lock()
	delete(am.usedInRun, runID)
	am.mu.Unlock()
}

// matchScore scores a file's tags against the query words
func matchScore(words []string, fileTags []string) int {
	tagSet := make(map[string]bool)
	for _, t := range fileTags {
		tagSet[strings.ToLower(t)] = true
	}
	score := 0
	for _, w := range words {
		if tagSet[strings.Trim(w, ".,!?\"'")] {
			score += 10
		}
	}
	return score
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

func loadTagsJSON(path string, log *zap.SugaredLogger) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("tags.json not found at %s, the library provider will find nothing", path)
			return make(map[string][]string), nil
		}
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	result := make(map[string][]string)
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			continue
		}
		result[k] = tags
	}
	return result, nil
}
