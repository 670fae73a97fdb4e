package lgrbus

import (
	"encoding/json"

	"github.com/abyssdigger/lgrbus/internal/apperrors"
)

// Level is an immutable (rank, name, color) triple owned by one LevelRegistry.
//
// Levels are created by registries only; callers hold *Level values returned
// by LevelRegistry.Get/Resolve/Levels. Comparisons resolve the other operand
// through the owning registry, so a name, a *Level or a LevelShape may be
// passed:
//
//	if threshold.IsAtMost("warn") { ... }
type Level struct {
	rank  int64
	name  string
	color Color
	owner *LevelRegistry
}

// LevelShape is the serialized form of a Level, as found in decoded events.
type LevelShape struct {
	Rank  int64  `json:"level"`
	Name  string `json:"levelName"`
	Color Color  `json:"color"`
}

func (lv *Level) Rank() int64 { return lv.rank }

func (lv *Level) Name() string { return lv.name }

func (lv *Level) Color() Color { return lv.color }

// Registry returns the owning registry.
func (lv *Level) Registry() *LevelRegistry { return lv.owner }

func (lv *Level) String() string { return lv.name }

// Shape returns the serializable form of the level.
func (lv *Level) Shape() LevelShape {
	return LevelShape{Rank: lv.rank, Name: lv.name, Color: lv.color}
}

func (lv *Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(lv.Shape())
}

// Compare resolves other through the owning registry and returns -1, 0 or +1
// as lv's rank is lower, equal or higher. An unresolvable other gives
// ErrUnresolvedLevel.
func (lv *Level) Compare(other any) (int, error) {
	o := lv.owner.Resolve(other, nil)
	if o == nil {
		return 0, apperrors.Newf(apperrors.ErrLevelUnresolved,
			"cannot compare %s with unregistered level %v", lv.name, describeLevelRef(other))
	}
	switch {
	case lv.rank < o.rank:
		return -1, nil
	case lv.rank > o.rank:
		return 1, nil
	}
	return 0, nil
}

// mustCompare panics on an unresolvable level: comparing with an unknown
// level is a registry/logger mismatch, never a data issue.
func (lv *Level) mustCompare(other any) int {
	c, err := lv.Compare(other)
	if err != nil {
		panic(err)
	}
	return c
}

// IsAtMost reports rank(lv) <= rank(other). Panics if other is not registered.
func (lv *Level) IsAtMost(other any) bool { return lv.mustCompare(other) <= 0 }

// IsAtLeast reports rank(lv) >= rank(other). Panics if other is not registered.
func (lv *Level) IsAtLeast(other any) bool { return lv.mustCompare(other) >= 0 }

// IsEqualTo reports rank(lv) == rank(other). Panics if other is not registered.
func (lv *Level) IsEqualTo(other any) bool { return lv.mustCompare(other) == 0 }

func describeLevelRef(ref any) any {
	switch v := ref.(type) {
	case *Level:
		if v == nil {
			return "<nil>"
		}
		return v.name
	case LevelShape:
		return v.Name
	}
	return ref
}
