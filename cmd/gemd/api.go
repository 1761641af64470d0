package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gemcraft.ai/internal/gems/ability"
	"gemcraft.ai/internal/gems/engine"
	"gemcraft.ai/internal/gems/model"
	"gemcraft.ai/internal/gems/trust"
	"gemcraft.ai/internal/gems/tuning"
	"gemcraft.ai/internal/protocol"
	"gemcraft.ai/internal/sim/world"
	"gemcraft.ai/internal/transport/feed"
)

const doTimeout = 5 * time.Second

// adminAPI exposes the operator commands over HTTP. Every engine call is marshalled onto
// the world loop with world.Do.
type adminAPI struct {
	world      *world.World
	engine     *engine.Engine
	hub        *feed.Hub
	feed       http.HandlerFunc
	configPath string
	log        zerolog.Logger
}

func (a *adminAPI) routes(r chi.Router) {
	if a.feed != nil {
		r.Get("/feed", a.feed)
	}
	r.Group(func(r chi.Router) {
		r.Use(loopbackOnly)
		r.Get("/state", a.state)
		r.Get("/actors", a.listActors)
		r.Post("/actors", a.joinActor)
		r.Get("/actors/{id}", a.getActor)
		r.Delete("/actors/{id}", a.leaveActor)
		r.Post("/actors/{id}/input", a.input)
		r.Post("/actors/{id}/activate", a.activate)
		r.Post("/actors/{id}/gems/{gem}", a.giveGem)
		r.Get("/actors/{id}/trust", a.listTrust)
		r.Put("/actors/{id}/trust/{other}", a.trust)
		r.Delete("/actors/{id}/trust/{other}", a.untrust)
		r.Get("/gems", a.gems)
		r.Put("/gems/{gem}", a.setGem)
		r.Post("/reload", a.reload)
	})
}

func loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(rw, r)
	})
}

func (a *adminAPI) do(r *http.Request, fn func()) error {
	ctx, cancel := context.WithTimeout(r.Context(), doTimeout)
	defer cancel()
	return a.world.Do(ctx, fn)
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(rw http.ResponseWriter, status int, code, msg string) {
	writeJSON(rw, status, apiError{Code: code, Message: msg})
}

func (a *adminAPI) busy(rw http.ResponseWriter, err error) {
	a.log.Warn().Err(err).Msg("world loop did not answer")
	writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, err.Error())
}

func actorParam(rw http.ResponseWriter, r *http.Request, name string) (model.ActorID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad actor id")
		return uuid.Nil, false
	}
	return id, true
}

func gemParam(rw http.ResponseWriter, r *http.Request) (model.GemType, bool) {
	g, err := model.ParseGemType(chi.URLParam(r, "gem"))
	if err != nil {
		writeError(rw, http.StatusNotFound, protocol.ErrProtoBadRequest, err.Error())
		return "", false
	}
	return g, true
}

type stateResponse struct {
	WorldID         string       `json:"world_id"`
	Tick            uint64       `json:"tick"`
	Stats           engine.Stats `json:"stats"`
	PendingTasks    int          `json:"pending_tasks"`
	FeedSubscribers int          `json:"feed_subscribers"`
	FeedDropped     uint64       `json:"feed_dropped"`
}

func (a *adminAPI) snapshot(r *http.Request) (stateResponse, error) {
	resp := stateResponse{
		WorldID:         a.world.Config().ID,
		FeedSubscribers: a.hub.Subscribers(),
		FeedDropped:     a.hub.Dropped(),
	}
	err := a.do(r, func() {
		resp.Tick = a.world.CurrentTick()
		resp.Stats = a.engine.Stats()
		resp.PendingTasks = a.world.PendingTasks()
	})
	return resp, err
}

func (a *adminAPI) state(rw http.ResponseWriter, r *http.Request) {
	resp, err := a.snapshot(r)
	if err != nil {
		a.busy(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *adminAPI) metrics(rw http.ResponseWriter, r *http.Request) {
	s, err := a.snapshot(r)
	if err != nil {
		a.busy(rw, err)
		return
	}
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	// Minimal Prometheus exposition format.
	fmt.Fprintf(rw, "# HELP gemcraft_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_world_tick gauge\n")
	fmt.Fprintf(rw, "gemcraft_world_tick{world=%q} %d\n", s.WorldID, s.Tick)
	fmt.Fprintf(rw, "# HELP gemcraft_active_actors Actors holding a gem in the equip slot.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_active_actors gauge\n")
	fmt.Fprintf(rw, "gemcraft_active_actors{world=%q} %d\n", s.WorldID, s.Stats.ActiveActors)
	fmt.Fprintf(rw, "# HELP gemcraft_ability_tasks Running ability tasks.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_ability_tasks gauge\n")
	fmt.Fprintf(rw, "gemcraft_ability_tasks{world=%q} %d\n", s.WorldID, s.Stats.Tasks)
	fmt.Fprintf(rw, "# HELP gemcraft_protected_blocks Blocks protected by ability structures.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_protected_blocks gauge\n")
	fmt.Fprintf(rw, "gemcraft_protected_blocks{world=%q} %d\n", s.WorldID, s.Stats.ProtectedCount)
	fmt.Fprintf(rw, "# HELP gemcraft_scheduler_pending Scheduled host callbacks.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_scheduler_pending gauge\n")
	fmt.Fprintf(rw, "gemcraft_scheduler_pending{world=%q} %d\n", s.WorldID, s.PendingTasks)
	fmt.Fprintf(rw, "# HELP gemcraft_feed_subscribers Connected feed subscribers.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_feed_subscribers gauge\n")
	fmt.Fprintf(rw, "gemcraft_feed_subscribers{world=%q} %d\n", s.WorldID, s.FeedSubscribers)
	fmt.Fprintf(rw, "# HELP gemcraft_feed_dropped_total Feed messages dropped on full subscribers.\n")
	fmt.Fprintf(rw, "# TYPE gemcraft_feed_dropped_total counter\n")
	fmt.Fprintf(rw, "gemcraft_feed_dropped_total{world=%q} %d\n", s.WorldID, s.FeedDropped)
}

func (a *adminAPI) listActors(rw http.ResponseWriter, r *http.Request) {
	views := []world.View{}
	err := a.do(r, func() {
		for _, id := range a.world.ActorIDs() {
			if act, ok := a.world.Actor(id); ok {
				views = append(views, act.View())
			}
		}
	})
	if err != nil {
		a.busy(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, views)
}

type joinRequest struct {
	Name string     `json:"name"`
	Pos  [3]float64 `json:"pos"`
}

func (a *adminAPI) joinActor(rw http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, err.Error())
		return
	}
	var id model.ActorID
	pos := model.Vec3f{X: req.Pos[0], Y: req.Pos[1], Z: req.Pos[2]}
	if err := a.do(r, func() { id = a.world.Join(uuid.Nil, req.Name, pos) }); err != nil {
		a.busy(rw, err)
		return
	}
	writeJSON(rw, http.StatusCreated, map[string]string{"id": id.String()})
}

type actorResponse struct {
	Actor world.View    `json:"actor"`
	Gems  engine.Status `json:"gems"`
}

func (a *adminAPI) getActor(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	var resp actorResponse
	var found bool
	err := a.do(r, func() {
		act, ok := a.world.Actor(id)
		if !ok {
			return
		}
		found = true
		resp.Actor = act.View()
		resp.Gems = a.engine.Status(id)
	})
	if err != nil {
		a.busy(rw, err)
		return
	}
	if !found {
		writeError(rw, http.StatusNotFound, protocol.ErrActorOffline, "actor not online")
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *adminAPI) leaveActor(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	if err := a.do(r, func() { a.world.Leave(id) }); err != nil {
		a.busy(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// input queues one world input for the next tick.
func (a *adminAPI) input(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	var in world.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, err.Error())
		return
	}
	if in.Kind == "" || in.Kind == world.InputJoin {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "bad input kind")
		return
	}
	in.Actor = id
	select {
	case a.world.Inbox() <- in:
		writeJSON(rw, http.StatusAccepted, map[string]bool{"queued": true})
	default:
		writeError(rw, http.StatusServiceUnavailable, protocol.ErrWorldBusy, "inbox full")
	}
}

type activateResponse struct {
	Accepted  bool   `json:"accepted"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	Remaining int    `json:"remaining_s,omitempty"`
}

func (a *adminAPI) activate(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	var actErr error
	var online bool
	err := a.do(r, func() {
		online = a.world.Online(id)
		if online {
			actErr = a.engine.OnAbilityInput(id)
		}
	})
	if err != nil {
		a.busy(rw, err)
		return
	}
	if !online {
		writeError(rw, http.StatusNotFound, protocol.ErrActorOffline, "actor not online")
		return
	}
	resp := activateResponse{Accepted: actErr == nil}
	if actErr != nil {
		resp.Message = actErr.Error()
		resp.Code = protocol.ErrInternal
		if rej, ok := ability.AsRejected(actErr); ok {
			resp.Code = protocol.CodeForReason(string(rej.Reason))
			resp.Remaining = rej.Remaining
		}
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *adminAPI) giveGem(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	g, ok := gemParam(rw, r)
	if !ok {
		return
	}
	var slot int
	var giveErr error
	if err := a.do(r, func() { slot, giveErr = a.engine.GiveGem(id, g) }); err != nil {
		a.busy(rw, err)
		return
	}
	switch {
	case errors.Is(giveErr, engine.ErrOffline):
		writeError(rw, http.StatusNotFound, protocol.ErrActorOffline, giveErr.Error())
	case giveErr != nil:
		writeError(rw, http.StatusConflict, protocol.ErrProtoBadRequest, giveErr.Error())
	default:
		a.log.Info().Str("actor", id.String()).Str("gem", string(g)).Msg("gem given")
		writeJSON(rw, http.StatusOK, map[string]int{"slot": slot})
	}
}

func (a *adminAPI) listTrust(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	ids := []string{}
	if err := a.do(r, func() {
		for _, t := range a.engine.Trusted(id) {
			ids = append(ids, t.String())
		}
	}); err != nil {
		a.busy(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string][]string{"trusted": ids})
}

func (a *adminAPI) trust(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	other, ok := actorParam(rw, r, "other")
	if !ok {
		return
	}
	var added bool
	var trustErr error
	if err := a.do(r, func() { added, trustErr = a.engine.Trust(r.Context(), id, other) }); err != nil {
		a.busy(rw, err)
		return
	}
	if errors.Is(trustErr, trust.ErrSelfTrust) {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, trustErr.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"added": added})
}

func (a *adminAPI) untrust(rw http.ResponseWriter, r *http.Request) {
	id, ok := actorParam(rw, r, "id")
	if !ok {
		return
	}
	other, ok := actorParam(rw, r, "other")
	if !ok {
		return
	}
	var removed bool
	if err := a.do(r, func() { removed = a.engine.Untrust(r.Context(), id, other) }); err != nil {
		a.busy(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"removed": removed})
}

func (a *adminAPI) gems(rw http.ResponseWriter, r *http.Request) {
	out := map[string]bool{}
	if err := a.do(r, func() {
		for _, g := range model.AllGems {
			out[string(g)] = a.engine.Enabled(g)
		}
	}); err != nil {
		a.busy(rw, err)
		return
	}
	writeJSON(rw, http.StatusOK, out)
}

func (a *adminAPI) setGem(rw http.ResponseWriter, r *http.Request) {
	g, ok := gemParam(rw, r)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrProtoBadRequest, "expected {\"enabled\": bool}")
		return
	}
	// The file is written first so a later reload or restart keeps the toggle.
	persisted := false
	if a.configPath != "" {
		if err := tuning.SaveEnabled(a.configPath, g, *req.Enabled); err != nil {
			a.log.Error().Err(err).Str("path", a.configPath).Msg("save gem toggle")
			writeError(rw, http.StatusInternalServerError, protocol.ErrInternal, err.Error())
			return
		}
		persisted = true
	}
	if err := a.do(r, func() { a.engine.SetGemEnabled(g, *req.Enabled) }); err != nil {
		a.busy(rw, err)
		return
	}
	a.log.Info().Str("gem", string(g)).Bool("enabled", *req.Enabled).Bool("persisted", persisted).Msg("gem toggled")
	writeJSON(rw, http.StatusOK, map[string]bool{string(g): *req.Enabled, "persisted": persisted})
}

// reload re-reads the config file and swaps it in.
func (a *adminAPI) reload(rw http.ResponseWriter, r *http.Request) {
	cfg, err := tuning.Load(a.configPath)
	if err != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrInvalidConfig, err.Error())
		return
	}
	var reloadErr error
	if err := a.do(r, func() { reloadErr = a.engine.Reload(cfg) }); err != nil {
		a.busy(rw, err)
		return
	}
	if reloadErr != nil {
		writeError(rw, http.StatusBadRequest, protocol.ErrInvalidConfig, reloadErr.Error())
		return
	}
	writeJSON(rw, http.StatusOK, map[string]bool{"reloaded": true})
}
