package lgrbus

import (
	"cmp"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// LevelConfig defines a level to add to a registry.
type LevelConfig struct {
	Rank  int64 `json:"level" yaml:"level"`
	Color Color `json:"color" yaml:"color"`
}

// LevelRegistry owns the set of known levels: the 9 standard ones plus any
// custom levels added later. Levels are never removed. Safe for concurrent use.
type LevelRegistry struct {
	mtx    sync.RWMutex
	byName map[string]*Level
	order  map[string]uint64 // first insertion sequence per name
	next   uint64
	sorted []*Level // by rank, then by first insertion
}

var standardLevels = []struct {
	name string
	cfg  LevelConfig
}{
	{LVL_ALL, LevelConfig{RANK_ALL, COLOR_GREY}},
	{LVL_TRACE, LevelConfig{RANK_TRACE, COLOR_BLUE}},
	{LVL_DEBUG, LevelConfig{RANK_DEBUG, COLOR_CYAN}},
	{LVL_INFO, LevelConfig{RANK_INFO, COLOR_GREEN}},
	{LVL_WARN, LevelConfig{RANK_WARN, COLOR_YELLOW}},
	{LVL_ERROR, LevelConfig{RANK_ERROR, COLOR_RED}},
	{LVL_FATAL, LevelConfig{RANK_FATAL, COLOR_MAGENTA}},
	{LVL_MARK, LevelConfig{RANK_MARK, COLOR_GREY}},
	{LVL_OFF, LevelConfig{RANK_OFF, COLOR_GREY}},
}

// NewLevelRegistry creates a registry with the standard levels, then merges
// custom (which may also override standard ones).
func NewLevelRegistry(custom map[string]LevelConfig) (*LevelRegistry, error) {
	r := &LevelRegistry{
		byName: make(map[string]*Level, len(standardLevels)+len(custom)),
		order:  make(map[string]uint64, len(standardLevels)+len(custom)),
	}
	for _, sl := range standardLevels {
		r.upsert(sl.name, sl.cfg)
	}
	r.resort()
	if err := r.AddLevels(custom); err != nil {
		return nil, err
	}
	return r, nil
}

// AddLevels upserts levels. Names are upper-cased; re-adding a name replaces
// its rank and color but keeps its original insertion position for ties.
// Within one call new names are inserted in alphabetical order.
//
// Empty names and unknown colors are rejected with ErrInvalidLevel and
// nothing is changed.
func (r *LevelRegistry) AddLevels(levels map[string]LevelConfig) error {
	if len(levels) == 0 {
		return nil
	}
	names := slices.Sorted(maps.Keys(levels))
	for _, n := range names {
		if err := validateLevel(n, levels[n]); err != nil {
			return err
		}
	}
	r.mtx.Lock()
	defer r.mtx.Unlock()
	for _, n := range names {
		r.upsert(n, levels[n])
	}
	r.resort()
	return nil
}

// AddLevel upserts a single level (see AddLevels).
func (r *LevelRegistry) AddLevel(name string, rank int64, color Color) error {
	return r.AddLevels(map[string]LevelConfig{name: {Rank: rank, Color: color}})
}

func validateLevel(name string, cfg LevelConfig) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Newf(apperrors.ErrConfigInvalidLevel, "level name is empty")
	}
	if !cfg.Color.Valid() {
		return apperrors.Newf(apperrors.ErrConfigInvalidLevel, "level %s has invalid color %d", name, cfg.Color)
	}
	return nil
}

// upsert must be called with mtx held (or before the registry is shared).
func (r *LevelRegistry) upsert(name string, cfg LevelConfig) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if _, ok := r.order[name]; !ok {
		r.order[name] = r.next
		r.next++
	}
	r.byName[name] = &Level{rank: cfg.Rank, name: name, color: cfg.Color, owner: r}
}

func (r *LevelRegistry) resort() {
	r.sorted = slices.Collect(maps.Values(r.byName))
	slices.SortFunc(r.sorted, func(a, b *Level) int {
		if c := cmp.Compare(a.rank, b.rank); c != 0 {
			return c
		}
		return cmp.Compare(r.order[a.name], r.order[b.name])
	})
}

// Get returns the level registered under name (case-insensitive), or nil.
func (r *LevelRegistry) Get(name string) *Level {
	if r == nil {
		return nil
	}
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.byName[strings.ToUpper(strings.TrimSpace(name))]
}

// Levels returns a snapshot of the registered levels sorted by rank.
func (r *LevelRegistry) Levels() []*Level {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return slices.Clone(r.sorted)
}

// Resolve converts a level reference to a registered level. Accepted refs:
//   - a name string (case-insensitive)
//   - a *Level or Level (a level of this registry is returned as is, a level
//     of another registry is looked up by name)
//   - a LevelShape or *LevelShape (a level decoded from another process)
//   - a map with a "levelName" or "name" string entry
//
// def is returned for nil, empty or unknown refs. A nil registry always
// returns def.
func (r *LevelRegistry) Resolve(ref any, def *Level) *Level {
	if r == nil {
		return def
	}
	var name string
	switch v := ref.(type) {
	case nil:
		return def
	case *Level:
		if v == nil {
			return def
		}
		if v.owner == r {
			return v
		}
		name = v.name
	case Level:
		name = v.name
	case string:
		name = v
	case LevelShape:
		name = v.Name
	case *LevelShape:
		if v == nil {
			return def
		}
		name = v.Name
	case map[string]any:
		if s, ok := v["levelName"].(string); ok {
			name = s
		} else if s, ok := v["name"].(string); ok {
			name = s
		}
	default:
		return def
	}
	if lv := r.Get(name); lv != nil {
		return lv
	}
	return def
}
