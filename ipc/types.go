package ipc

import (
	"github.com/dreamsxin/memrecycle/policy"
	"github.com/dreamsxin/memrecycle/types"
)

// StatusRequest requests the current display state.
type StatusRequest struct{}

// StatusResponse carries the latest sample, policy and last recycle event.
type StatusResponse struct {
	Display types.Display `json:"display"`
	Line    string        `json:"line"`
}

// RecycleRequest triggers a manual recycle.
type RecycleRequest struct{}

// RecycleResponse reports the outcome of the manual cycle.
type RecycleResponse struct {
	Outcome string            `json:"outcome"`
	Result  types.CycleResult `json:"result"`
}

// SetPolicyRequest changes one policy field. Value may be a choice label or a number.
type SetPolicyRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// SetPolicyResponse returns the policy after the change.
// Warning is set when the change was applied but could not be saved.
type SetPolicyResponse struct {
	Policy  types.Policy `json:"policy"`
	Warning string       `json:"warning,omitempty"`
}

// ChoicesRequest lists choices for one field, or all fields when Field is empty.
type ChoicesRequest struct {
	Field string `json:"field"`
}

// ChoiceGroup is the choice list of one policy field.
type ChoiceGroup struct {
	Field   string          `json:"field"`
	Current string          `json:"current"`
	Choices []policy.Choice `json:"choices"`
}

// ChoicesResponse returns choice groups in display order.
type ChoicesResponse struct {
	Groups []ChoiceGroup `json:"groups"`
}
