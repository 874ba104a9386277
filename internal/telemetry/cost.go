// Copyright MagicAPI AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package telemetry

import "strings"

// Per-token USD rates. These are blended input/output rates applied to the
// total token count, matching what the billing pipeline expects.

func openAICost(model string, totalTokens int64) float64 {
	switch {
	case strings.HasPrefix(model, "gpt-4"):
		return float64(totalTokens) * 0.00003
	case strings.HasPrefix(model, "gpt-3.5"):
		return float64(totalTokens) * 0.000002
	default:
		return 0
	}
}

func bedrockCost(model string, totalTokens int64) float64 {
	switch {
	case strings.Contains(model, "claude"):
		return float64(totalTokens) * 0.00001102
	case strings.Contains(model, "titan"):
		return float64(totalTokens) * 0.00001
	case strings.Contains(model, "llama2"):
		return float64(totalTokens) * 0.00001
	default:
		return 0
	}
}

// groqRates is ordered: more specific model substrings come before the
// families that would otherwise shadow them.
var groqRates = []struct {
	substr string
	rate   float64
}{
	{"llama-3.1-70b", 0.0000008},
	{"llama-3.1-8b", 0.00000005},
	{"llama-3-70b", 0.0000008},
	{"llama-3-8b", 0.00000005},
	{"llama2-70b", 0.0000007},
	{"llama2-13b", 0.0000002},
	{"llama2-7b", 0.0000001},
	{"mixtral-8x22b", 0.0000012},
	{"mixtral-8x7b", 0.00000024},
	{"gemma-27b", 0.00000027},
	{"gemma-7b", 0.00000007},
}

// groqCost falls back to a deliberately high rate for unknown models so a
// missing table entry surfaces in billing review instead of undercharging.
func groqCost(model string, totalTokens int64) float64 {
	for _, r := range groqRates {
		if strings.Contains(model, r.substr) {
			return float64(totalTokens) * r.rate
		}
	}
	return float64(totalTokens) * 0.0001
}
