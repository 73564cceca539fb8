package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Action is a kind of user behaviour recorded against a product.
type Action string

const (
	ActionView      Action = "view"
	ActionAddToCart Action = "add_to_cart"
	ActionPurchase  Action = "purchase"
	ActionReview    Action = "review"
	ActionLike      Action = "like"
	ActionShare     Action = "share"
)

// Actions lists every accepted action in a stable order.
var Actions = []Action{
	ActionView,
	ActionAddToCart,
	ActionPurchase,
	ActionReview,
	ActionLike,
	ActionShare,
}

// ParseAction returns the Action for s and whether it is known.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// HighSignal reports whether the action should immediately invalidate
// cached personalized recommendations.
func (a Action) HighSignal() bool {
	return a == ActionPurchase || a == ActionReview
}

// InteractionEvent is a single recorded behaviour. Events are never
// mutated after they are recorded.
type InteractionEvent struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	TenantID  string                 `json:"tenant_id" db:"tenant_id"`
	UserID    string                 `json:"user_id" db:"user_id"`
	ProductID string                 `json:"product_id" db:"product_id"`
	Action    Action                 `json:"action" db:"action"`
	Timestamp time.Time              `json:"timestamp" db:"occurred_at"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
}

// RatingVector maps product ids to an implicit rating.
type RatingVector map[string]float64

// ProductIDs returns the rated product ids in ascending order.
func (v RatingVector) ProductIDs() []string {
	ids := make([]string, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TrackBehaviorRequest is the body of a behaviour tracking call.
type TrackBehaviorRequest struct {
	UserID    string                 `json:"user_id" validate:"required,max=128"`
	ProductID string                 `json:"product_id" validate:"required,max=128"`
	Action    string                 `json:"action" validate:"required"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// BehaviorMessage is the stream envelope for behaviour events emitted by the
// surrounding application.
type BehaviorMessage struct {
	TenantID  string                 `json:"tenant_id"`
	UserID    string                 `json:"user_id"`
	ProductID string                 `json:"product_id"`
	Action    string                 `json:"action"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
