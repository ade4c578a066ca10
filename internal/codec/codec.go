// Package codec converts persisted records to and from their JSON form.
//
// Session records carry a schema_version. Reading an older record runs it
// through the upgrade chain in memory; nothing is rewritten until the next
// natural write. Records from a newer version are accepted as-is and any
// top-level fields this version does not know are carried through to the
// next write. Every record is checked against an embedded JSON schema and a
// failure surfaces as an integrity error of kind Corrupt.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Iron-Ham/worklog/internal/errors"
	"github.com/Iron-Ham/worklog/internal/model"
)

// Marshal renders v as 2-space indented JSON followed by a newline, the
// format of every file worklog writes.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeSession parses a session record read from path.
func DecodeSession(path string, data []byte) (*model.Session, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corrupt(path, err)
	}
	if raw == nil {
		return nil, corrupt(path, errors.New("record is not a JSON object"))
	}

	version, err := schemaVersion(raw)
	if err != nil {
		return nil, corrupt(path, err)
	}
	// A newer writer may have changed the shape; only records we know how
	// to read are held to our schema.
	if version <= model.SchemaVersion {
		if err := validateAgainst(sessionSchema, data); err != nil {
			return nil, corrupt(path, err)
		}
	}

	raw = migrate(raw, version)
	normalizeTimestamps(raw, sessionTimeFields...)
	for _, key := range []string{"events", "tasks"} {
		normalizeNestedTimestamps(raw, key)
	}

	var s model.Session
	if err := remarshal(raw, &s); err != nil {
		return nil, corrupt(path, err)
	}
	s.SchemaVersion = version
	if version < model.SchemaVersion {
		s.SchemaVersion = model.SchemaVersion
	}
	s.Extra = unknownFields(raw, sessionFields)
	applySessionDefaults(&s)
	return &s, nil
}

// EncodeSession renders s for disk. The written schema_version is never
// lower than the one the record was read with, and fields preserved in
// Extra are merged back in.
func EncodeSession(s *model.Session) ([]byte, error) {
	out := *s
	if out.SchemaVersion < model.SchemaVersion {
		out.SchemaVersion = model.SchemaVersion
	}
	applySessionDefaults(&out)

	if len(out.Extra) == 0 {
		return Marshal(&out)
	}

	data, err := json.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	var merged map[string]any
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	for k, v := range out.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return Marshal(merged)
}

// DecodeProjectState parses a project state record. Missing fields take
// their zero values.
func DecodeProjectState(path string, data []byte) (*model.ProjectState, error) {
	if err := validateAgainst(projectSchema, data); err != nil {
		return nil, corrupt(path, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corrupt(path, err)
	}
	normalizeTimestamps(raw, "last_activity", "updated_at")

	var ps model.ProjectState
	if err := remarshal(raw, &ps); err != nil {
		return nil, corrupt(path, err)
	}
	applyProjectDefaults(&ps)
	return &ps, nil
}

// EncodeProjectState renders ps for disk.
func EncodeProjectState(ps *model.ProjectState) ([]byte, error) {
	out := *ps
	applyProjectDefaults(&out)
	return Marshal(&out)
}

// DecodeConfig parses the config record. Settings absent from the file keep
// their defaults.
func DecodeConfig(path string, data []byte) (*model.Config, error) {
	if err := validateAgainst(configSchema, data); err != nil {
		return nil, corrupt(path, err)
	}
	cfg := model.DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, corrupt(path, err)
	}
	if cfg.Version == 0 {
		cfg.Version = model.ConfigVersion
	}
	if cfg.Projects == nil {
		cfg.Projects = map[string]model.ProjectRegistration{}
	}
	return cfg, nil
}

// EncodeConfig renders cfg for disk.
func EncodeConfig(cfg *model.Config) ([]byte, error) {
	return Marshal(cfg)
}

// DecodeIndex parses the session index. An index is derived data, so a
// failure here is reported as Corrupt and the caller rebuilds.
func DecodeIndex(path string, data []byte) (map[string]model.IndexEntry, error) {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, corrupt(path, err)
	}
	entries := make(map[string]model.IndexEntry, len(raw))
	for id, fields := range raw {
		if fields == nil {
			continue
		}
		normalizeTimestamps(fields, "started_at", "ended_at", "last_heartbeat")
		var e model.IndexEntry
		if err := remarshal(fields, &e); err != nil {
			return nil, corrupt(path, fmt.Errorf("entry %s: %w", id, err))
		}
		entries[id] = e
	}
	return entries, nil
}

// EncodeIndex renders the index with keys in sorted order.
func EncodeIndex(entries map[string]model.IndexEntry) ([]byte, error) {
	if entries == nil {
		entries = map[string]model.IndexEntry{}
	}
	return Marshal(entries)
}

func corrupt(path string, cause error) error {
	return errors.NewIntegrityError(errors.IntegrityCorrupt, path, cause)
}

func remarshal(raw map[string]any, v any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	return dec.Decode(v)
}

// normalizeTimestamps drops empty-string and null timestamps so they decode
// as absent instead of failing time parsing.
func normalizeTimestamps(raw map[string]any, keys ...string) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if v == nil {
			delete(raw, k)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			delete(raw, k)
		}
	}
}

func normalizeNestedTimestamps(raw map[string]any, key string) {
	items, ok := raw[key].([]any)
	if !ok {
		return
	}
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			normalizeTimestamps(m, "timestamp", "added_at", "updated_at")
		}
	}
}

func unknownFields(raw map[string]any, known map[string]struct{}) map[string]any {
	var extra map[string]any
	for k, v := range raw {
		if _, ok := known[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}
	return extra
}

func applySessionDefaults(s *model.Session) {
	if s.GitBranch == "" {
		s.GitBranch = model.DefaultGitBranch
	}
	if s.Events == nil {
		s.Events = []model.Event{}
	}
	if s.FilesChanged == nil {
		s.FilesChanged = []string{}
	}
	if s.Commits == nil {
		s.Commits = []model.Commit{}
	}
	if s.Decisions == nil {
		s.Decisions = []string{}
	}
	if s.OpenQuestions == nil {
		s.OpenQuestions = []string{}
	}
	if s.NextSteps == nil {
		s.NextSteps = []string{}
	}
	if s.Tasks == nil {
		s.Tasks = []model.Task{}
	}
}

func applyProjectDefaults(ps *model.ProjectState) {
	if ps.RoadmapSummary.Completed == nil {
		ps.RoadmapSummary.Completed = []string{}
	}
	if ps.RoadmapSummary.InProgress == nil {
		ps.RoadmapSummary.InProgress = []string{}
	}
	if ps.RoadmapSummary.NextUp == nil {
		ps.RoadmapSummary.NextUp = []string{}
	}
	if ps.RecentCommits == nil {
		ps.RecentCommits = []model.Commit{}
	}
	if ps.OpenQuestions == nil {
		ps.OpenQuestions = []string{}
	}
}
