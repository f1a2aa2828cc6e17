package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// toEnv converts a message payload to a map for case-predicate evaluation
// using a JSON round-trip, so json tags drive the field names predicates see.
func toEnv(payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload to map: %w", err)
	}

	return result, nil
}

// DecodePayload converts a generic map (typically a decoded JSON body) into a
// typed payload struct. It maps fields by json tag and supports
// time.Duration and RFC3339 time.Time conversions.
func DecodePayload(m map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to %T: %w", target, err)
	}

	return nil
}
