package world

import (
	"sort"

	"gemcraft.ai/internal/gems/model"
)

const (
	// InventorySize covers 36 main slots, 4 armor slots and the off-hand at 40.
	InventorySize = 41
	OffHandSlot   = 40
	mainSlots     = 36

	MaxHealth     = 20.0
	noticeHistory = 32
)

type CooldownBar struct {
	Remaining int `json:"remaining"`
	Max       int `json:"max"`
}

type Actor struct {
	ID   model.ActorID
	Name string

	Pos      model.Vec3f
	Facing   model.Vec3f
	Velocity model.Vec3f
	Health   float64

	Hidden      bool
	AllowFlight bool
	BurnTicks   int

	Effects     map[model.EffectType]*model.ActiveEffect
	Slots       [InventorySize]*model.Item
	CooldownBar CooldownBar
	Notices     []Notice
}

func newActor(id model.ActorID, name string, pos model.Vec3f) *Actor {
	return &Actor{
		ID:      id,
		Name:    name,
		Pos:     pos,
		Facing:  model.Vec3f{Z: 1},
		Health:  MaxHealth,
		Effects: map[model.EffectType]*model.ActiveEffect{},
	}
}

func (a *Actor) pushNotice(n Notice) {
	a.Notices = append(a.Notices, n)
	if len(a.Notices) > noticeHistory {
		a.Notices = a.Notices[len(a.Notices)-noticeHistory:]
	}
}

// View is a copy of an actor's observable state.
type View struct {
	ID          model.ActorID        `json:"id"`
	Name        string               `json:"name"`
	Pos         model.Vec3f          `json:"pos"`
	Facing      model.Vec3f          `json:"facing"`
	Health      float64              `json:"health"`
	Hidden      bool                 `json:"hidden"`
	AllowFlight bool                 `json:"allow_flight"`
	BurnTicks   int                  `json:"burn_ticks"`
	Effects     []model.ActiveEffect `json:"effects"`
	Slots       []model.SlotItem     `json:"slots"`
	CooldownBar CooldownBar          `json:"cooldown_bar"`
	Notices     []Notice             `json:"notices"`
}

func (a *Actor) View() View {
	v := View{
		ID:          a.ID,
		Name:        a.Name,
		Pos:         a.Pos,
		Facing:      a.Facing,
		Health:      a.Health,
		Hidden:      a.Hidden,
		AllowFlight: a.AllowFlight,
		BurnTicks:   a.BurnTicks,
		CooldownBar: a.CooldownBar,
		Notices:     append([]Notice(nil), a.Notices...),
	}
	for _, e := range a.Effects {
		v.Effects = append(v.Effects, *e)
	}
	sort.Slice(v.Effects, func(i, j int) bool { return v.Effects[i].Type < v.Effects[j].Type })
	for i, it := range a.Slots {
		if it != nil {
			v.Slots = append(v.Slots, model.SlotItem{Index: i, Item: *it})
		}
	}
	return v
}
