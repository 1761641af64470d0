package ability

import (
	"errors"
	"fmt"

	"gemcraft.ai/internal/gems/model"
)

type Reason string

const (
	ReasonCooldown      Reason = "cooldown"
	ReasonDisabled      Reason = "disabled"
	ReasonInvalidConfig Reason = "invalid_config"
	ReasonNoGem         Reason = "no_gem"
	ReasonInvalidTarget Reason = "invalid_target"
)

// Rejected is returned when an activation attempt is refused without changing state.
type Rejected struct {
	Gem       model.GemType
	Reason    Reason
	Remaining int // seconds, for ReasonCooldown
}

func (r *Rejected) Error() string {
	if r.Reason == ReasonCooldown {
		return fmt.Sprintf("%s primary rejected: cooldown, %ds remaining", r.Gem, r.Remaining)
	}
	if r.Gem == "" {
		return fmt.Sprintf("activation rejected: %s", r.Reason)
	}
	return fmt.Sprintf("%s primary rejected: %s", r.Gem, r.Reason)
}

// AsRejected unwraps err into a *Rejected.
func AsRejected(err error) (*Rejected, bool) {
	var r *Rejected
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
