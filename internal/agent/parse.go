package agent

import (
	"encoding/json"
	"fmt"
)

// parseSearchPlan decodes the JSON arguments of a get_categories tool call.
func parseSearchPlan(arguments string) (*SearchPlan, error) {
	plan := &SearchPlan{}

	err := json.Unmarshal([]byte(arguments), plan)
	if err != nil {
		return nil, fmt.Errorf("agent::parseSearchPlan: failed to unmarshal tool arguments: %w", err)
	}

	return plan, nil
}

// parseCartAction decodes the JSON arguments of an update_cart tool call.
func parseCartAction(arguments string) (*CartAction, error) {
	action := &CartAction{}

	err := json.Unmarshal([]byte(arguments), action)
	if err != nil {
		return nil, fmt.Errorf("agent::parseCartAction: failed to unmarshal tool arguments: %w", err)
	}

	if action.Action == "" {
		return nil, fmt.Errorf("agent::parseCartAction: action is required")
	}
	for i := range action.Items {
		if action.Items[i].Quantity <= 0 {
			action.Items[i].Quantity = 1
		}
	}

	return action, nil
}
