// Package model holds the identifiers and value types shared by the gem engine and its hosts.
package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// ActorID is the stable identity of a connected participant.
type ActorID = uuid.UUID

type GemType string

const (
	GemAstra    GemType = "astra"
	GemFire     GemType = "fire"
	GemIce      GemType = "ice"
	GemInvis    GemType = "invis"
	GemPuff     GemType = "puff"
	GemSpeed    GemType = "speed"
	GemStrength GemType = "strength"
)

// AllGems lists every gem type in catalog order.
var AllGems = []GemType{GemAstra, GemFire, GemIce, GemInvis, GemPuff, GemSpeed, GemStrength}

func ParseGemType(s string) (GemType, error) {
	g := GemType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllGems {
		if g == known {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown gem type %q", s)
}

type Slot string

const (
	SlotPassive Slot = "passive"
	SlotPrimary Slot = "primary"
)

// AbilityKey indexes cooldowns and periodic tasks.
type AbilityKey struct {
	Gem  GemType
	Slot Slot
}

func Passive(g GemType) AbilityKey { return AbilityKey{Gem: g, Slot: SlotPassive} }
func Primary(g GemType) AbilityKey { return AbilityKey{Gem: g, Slot: SlotPrimary} }

func (k AbilityKey) String() string { return string(k.Gem) + "_" + string(k.Slot) }

type Vec3i struct{ X, Y, Z int }

func (v Vec3i) Add(o Vec3i) Vec3i { return Vec3i{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3i) Center() Vec3f {
	return Vec3f{X: float64(v.X) + 0.5, Y: float64(v.Y) + 0.5, Z: float64(v.Z) + 0.5}
}

type Vec3f struct{ X, Y, Z float64 }

func (v Vec3f) Add(o Vec3f) Vec3f     { return Vec3f{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3f) Sub(o Vec3f) Vec3f     { return Vec3f{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }
func (v Vec3f) Scale(s float64) Vec3f { return Vec3f{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }
func (v Vec3f) Dot(o Vec3f) float64   { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }
func (v Vec3f) Len() float64          { return math.Sqrt(v.Dot(v)) }

func (v Vec3f) Normalize() Vec3f {
	l := v.Len()
	if l == 0 {
		return Vec3f{}
	}
	return v.Scale(1 / l)
}

// Block returns the block coordinate containing v.
func (v Vec3f) Block() Vec3i {
	return Vec3i{X: int(math.Floor(v.X)), Y: int(math.Floor(v.Y)), Z: int(math.Floor(v.Z))}
}

type Material string

const (
	Air        Material = "AIR"
	Stone      Material = "STONE"
	Water      Material = "WATER"
	Ice        Material = "ICE"
	PackedIce  Material = "PACKED_ICE"
	BlueIce    Material = "BLUE_ICE"
	FrostedIce Material = "FROSTED_ICE"
	HoneyBlock Material = "HONEY_BLOCK"
)

func (m Material) IsIce() bool {
	switch m {
	case Ice, PackedIce, BlueIce, FrostedIce:
		return true
	}
	return false
}

type EffectType string

const (
	Invisibility   EffectType = "INVISIBILITY"
	Speed          EffectType = "SPEED"
	Haste          EffectType = "HASTE"
	Strength       EffectType = "STRENGTH"
	FireResistance EffectType = "FIRE_RESISTANCE"
	Slowness       EffectType = "SLOWNESS"
)

// InfiniteDuration marks an effect that never runs out.
const InfiniteDuration = -1

// EffectSpec is a status effect to apply. Amplifier 0 is level I.
type EffectSpec struct {
	Type          EffectType
	DurationTicks int
	Amplifier     int
}

func (s EffectSpec) Infinite() bool { return s.DurationTicks == InfiniteDuration }

// ActiveEffect is a status effect as currently observed on an actor.
type ActiveEffect struct {
	Type           EffectType
	RemainingTicks int
	Infinite       bool
	Amplifier      int
}

// Item is one item instance in an inventory slot. Gem is empty for non-gem items.
type Item struct {
	ID       string
	Material string
	Gem      GemType
}

func (it Item) IsGem() bool { return it.Gem != "" }

// SlotItem pairs an inventory slot index with its content.
type SlotItem struct {
	Index int
	Item  Item
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeveritySuccess:
		return "success"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}
