package codec

import (
	"fmt"
	"math"

	"github.com/Iron-Ham/worklog/internal/model"
)

// upgrade rewrites a decoded record from one schema version to the next.
type upgrade func(raw map[string]any) map[string]any

// upgrades is indexed by the version an upgrade starts from. Adding a
// schema version means appending one entry here and bumping
// model.SchemaVersion.
var upgrades = map[int]upgrade{
	1: upgradeV1ToV2,
}

// upgradeV1ToV2 introduces the task list.
func upgradeV1ToV2(raw map[string]any) map[string]any {
	if _, ok := raw["tasks"]; !ok {
		raw["tasks"] = []any{}
	}
	return raw
}

// schemaVersion reads schema_version from a decoded record. A missing or
// null field means version 1.
func schemaVersion(raw map[string]any) (int, error) {
	v, ok := raw["schema_version"]
	if !ok || v == nil {
		return 1, nil
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("schema_version must be an integer, got %v", v)
	}
	if f < 1 {
		return 1, nil
	}
	return int(f), nil
}

// migrate applies every upgrade from version up to the current version.
// Records at or beyond the current version pass through untouched.
func migrate(raw map[string]any, version int) map[string]any {
	for v := version; v < model.SchemaVersion; v++ {
		if up, ok := upgrades[v]; ok {
			raw = up(raw)
		}
	}
	if version < model.SchemaVersion {
		raw["schema_version"] = float64(model.SchemaVersion)
	}
	return raw
}
