package stats

import (
	"encoding/json"
	"fmt"
	"strings"

	"mc-dashboard-backend/internal/parse"
)

var distanceKeys = []string{
	"minecraft:walk_one_cm",
	"minecraft:sprint_one_cm",
	"minecraft:fly_one_cm",
	"minecraft:swim_one_cm",
	"minecraft:climb_one_cm",
}

type userCacheEntry struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

type statsFile struct {
	Stats map[string]map[string]int64 `json:"stats"`
}

// parseUserCache maps player names to UUIDs. An empty file is an empty cache.
func parseUserCache(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]string{}, nil
	}
	var entries []userCacheEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, fmt.Errorf("%w: usercache.json: %v", parse.ErrUnexpectedFormat, err)
	}
	uuids := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Name != "" && e.UUID != "" {
			uuids[e.Name] = e.UUID
		}
	}
	return uuids, nil
}

func parsePlayerStats(raw string) (PlayerStats, error) {
	var f statsFile
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return PlayerStats{}, fmt.Errorf("%w: stats file: %v", parse.ErrUnexpectedFormat, err)
	}
	var st PlayerStats
	for _, n := range f.Stats["minecraft:mined"] {
		st.BlocksMined += n
	}
	custom := f.Stats["minecraft:custom"]
	for _, key := range distanceKeys {
		st.DistanceCM += custom[key]
	}
	return st, nil
}
