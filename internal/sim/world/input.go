package world

import (
	"gemcraft.ai/internal/gems/model"
)

type InputKind string

const (
	InputJoin      InputKind = "join"
	InputLeave     InputKind = "leave"
	InputMove      InputKind = "move"
	InputJump      InputKind = "jump"
	InputSwapHands InputKind = "swap_hands"
	InputAttack    InputKind = "attack"
	InputPickUp    InputKind = "pick_up"
	InputDrop      InputKind = "drop"
	InputMoveItem  InputKind = "move_item"
	InputPlace     InputKind = "place"
	InputBreak     InputKind = "break"
)

// Input is one actor action queued for the next tick.
type Input struct {
	Actor model.ActorID `json:"actor"`
	Kind  InputKind     `json:"kind"`

	Name   string        `json:"name,omitempty"`
	Pos    *model.Vec3f  `json:"pos,omitempty"`
	Facing *model.Vec3f  `json:"facing,omitempty"`
	Block  *model.Vec3i  `json:"block,omitempty"`
	Target model.ActorID `json:"target,omitempty"`
	Damage float64       `json:"damage,omitempty"`
	Item   *model.Item   `json:"item,omitempty"`
	Slot   int           `json:"slot,omitempty"`
	To     int           `json:"to,omitempty"`
}

func (w *World) apply(in Input) {
	if in.Kind == InputJoin {
		pos := model.Vec3f{}
		if in.Pos != nil {
			pos = *in.Pos
		}
		w.Join(in.Actor, in.Name, pos)
		return
	}
	a, ok := w.actors[in.Actor]
	if !ok {
		return
	}
	switch in.Kind {
	case InputLeave:
		w.Leave(a.ID)
	case InputMove:
		if in.Facing != nil {
			a.Facing = in.Facing.Normalize()
		}
		if in.Pos != nil {
			a.Pos = *in.Pos
			w.handler.OnMovement(a.ID)
		}
	case InputJump:
		if w.OnGround(a.ID) {
			a.Velocity.Y = 0.42
			return
		}
		if a.AllowFlight {
			w.handler.OnJump(a.ID)
		}
	case InputSwapHands:
		w.SwapHands(a.ID, in.Slot)
	case InputAttack:
		w.Attack(a.ID, in.Target, in.Damage)
	case InputPickUp:
		if in.Item != nil {
			w.PickUp(a.ID, *in.Item)
		}
	case InputDrop:
		w.Drop(a.ID, in.Slot)
	case InputMoveItem:
		w.MoveItem(a.ID, in.Slot, in.To)
	case InputPlace:
		if in.Block != nil {
			w.Place(a.ID, in.Slot, *in.Block)
		}
	case InputBreak:
		if in.Block != nil {
			w.Break(a.ID, *in.Block)
		}
	}
}

// SwapHands is the ability key: with an active gem it activates the primary and the swap
// is cancelled, otherwise hand slot and off-hand trade places.
func (w *World) SwapHands(actor model.ActorID, hand int) {
	a, ok := w.actors[actor]
	if !ok {
		return
	}
	if _, active := w.handler.ActiveGem(actor); active {
		if err := w.handler.OnAbilityInput(actor); err != nil {
			w.log.Debug().Err(err).Str("actor", actor.String()).Msg("ability input rejected")
		}
		return
	}
	if hand < 0 || hand >= mainSlots {
		return
	}
	a.Slots[hand], a.Slots[OffHandSlot] = a.Slots[OffHandSlot], a.Slots[hand]
	w.handler.OnInventoryChanged(actor)
}

// Attack routes a hit through the handler before applying it.
func (w *World) Attack(attacker, victim model.ActorID, damage float64) {
	if attacker == victim || !w.Online(attacker) || !w.Online(victim) {
		return
	}
	dmg, cancelled := w.handler.OnCombatEvent(attacker, victim, damage)
	if cancelled {
		return
	}
	w.Damage(victim, dmg)
}

func (w *World) PickUp(actor model.ActorID, it model.Item) (int, bool) {
	slot, ok := w.AddItem(actor, it)
	if ok {
		w.handler.OnInventoryChanged(actor)
	}
	return slot, ok
}

func (w *World) Drop(actor model.ActorID, slot int) {
	a, ok := w.actors[actor]
	if !ok || slot < 0 || slot >= InventorySize || a.Slots[slot] == nil {
		return
	}
	a.Slots[slot] = nil
	w.handler.OnInventoryChanged(actor)
}

func (w *World) MoveItem(actor model.ActorID, from, to int) {
	a, ok := w.actors[actor]
	if !ok || from < 0 || from >= InventorySize || to < 0 || to >= InventorySize || from == to {
		return
	}
	a.Slots[from], a.Slots[to] = a.Slots[to], a.Slots[from]
	w.handler.OnInventoryChanged(actor)
}

// Place puts the block item in slot at pos. Gems and occupied or protected positions are
// refused.
func (w *World) Place(actor model.ActorID, slot int, pos model.Vec3i) bool {
	a, ok := w.actors[actor]
	if !ok || slot < 0 || slot >= InventorySize || a.Slots[slot] == nil {
		return false
	}
	it := *a.Slots[slot]
	if !w.handler.CanPlace(actor, it) || w.handler.IsBlocked(pos) || w.Block(pos) != model.Air {
		return false
	}
	w.SetBlock(pos, model.Material(it.Material))
	a.Slots[slot] = nil
	w.handler.OnInventoryChanged(actor)
	return true
}

// Break clears pos unless it is protected.
func (w *World) Break(actor model.ActorID, pos model.Vec3i) bool {
	if !w.Online(actor) || w.handler.IsBlocked(pos) || w.Block(pos) == model.Air {
		return false
	}
	w.SetBlock(pos, model.Air)
	return true
}

// Explode clears every unprotected block within radius of center and reports how many
// were removed.
func (w *World) Explode(center model.Vec3i, radius int) int {
	n := 0
	for x := -radius; x <= radius; x++ {
		for y := -radius; y <= radius; y++ {
			for z := -radius; z <= radius; z++ {
				p := center.Add(model.Vec3i{X: x, Y: y, Z: z})
				if x*x+y*y+z*z > radius*radius || w.handler.IsBlocked(p) || w.Block(p) == model.Air {
					continue
				}
				w.SetBlock(p, model.Air)
				n++
			}
		}
	}
	return n
}
