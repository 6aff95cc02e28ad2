// Copyright 2026 © The Telos Authors
// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"encoding/json"
	"strings"

	"github.com/jllopis/telos/pkg/errors"
)

// maxRawOutput bounds the raw model output attached to parse errors.
const maxRawOutput = 2000

// ParsePlan extracts the plan from raw model output. The first top-level
// object, starting at the first '{', must decode to an object whose "steps"
// field is an array of strings. Text after that object is ignored.
func ParsePlan(output string) ([]string, error) {
	start := strings.Index(output, "{")
	if start < 0 {
		return nil, parseError("no JSON object found in planner output", output, nil)
	}

	var doc map[string]json.RawMessage
	if err := json.NewDecoder(strings.NewReader(output[start:])).Decode(&doc); err != nil {
		return nil, parseError("planner output is not valid JSON", output, err)
	}
	raw, ok := doc["steps"]
	if !ok {
		return nil, parseError(`planner output has no "steps" field`, output, nil)
	}
	var steps []string
	if err := json.Unmarshal(raw, &steps); err != nil || steps == nil {
		return nil, parseError(`"steps" must be an array of strings`, output, err)
	}
	return steps, nil
}

func parseError(msg, output string, cause error) error {
	if len(output) > maxRawOutput {
		output = output[:maxRawOutput] + "..."
	}
	return errors.New(errors.CodePlanParse, msg, cause).WithContext("output", output)
}
