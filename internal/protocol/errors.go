package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// World routing/state.
	ErrWorldBusy    = "E_WORLD_BUSY"
	ErrActorOffline = "E_ACTOR_OFFLINE"

	// Ability layer.
	ErrCooldown      = "E_COOLDOWN"
	ErrDisabled      = "E_DISABLED"
	ErrNoGem         = "E_NO_GEM"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrInvalidConfig = "E_INVALID_CONFIG"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrWorldBusy:       {},
	ErrActorOffline:    {},
	ErrCooldown:        {},
	ErrDisabled:        {},
	ErrNoGem:           {},
	ErrInvalidTarget:   {},
	ErrInvalidConfig:   {},
	ErrInternal:        {},
}

var reasonCodes = map[string]string{
	"cooldown":       ErrCooldown,
	"disabled":       ErrDisabled,
	"no_gem":         ErrNoGem,
	"invalid_target": ErrInvalidTarget,
	"invalid_config": ErrInvalidConfig,
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeForReason maps an ability rejection reason to its wire code. Unknown non-empty reasons
// are internal errors.
func CodeForReason(reason string) string {
	if reason == "" {
		return ""
	}
	if c, ok := reasonCodes[reason]; ok {
		return c
	}
	return ErrInternal
}
