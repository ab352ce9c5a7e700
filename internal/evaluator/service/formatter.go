package service

import (
	"fmt"
	"strings"

	"codepractice/internal/evaluator/model"
)

const hiddenValue = "(hidden)"

// FormatOutput renders the transcript for results. hidden[i] masks the
// input and expected value of results[i].
func FormatOutput(results []model.TestResult, hidden []bool) []string {
	return FormatErrorOutput(results, hidden, "")
}

// FormatErrorOutput is FormatOutput with an error line placed before the
// summary. An empty message adds nothing.
func FormatErrorOutput(results []model.TestResult, hidden []bool, message string) []string {
	lines := make([]string, 0, len(results)*4+2)
	passed := 0
	for i, r := range results {
		if r.Passed {
			passed++
			lines = append(lines, fmt.Sprintf("Test Case %d: PASSED", r.TestCaseID+1))
			continue
		}
		lines = append(lines, fmt.Sprintf("Test Case %d: FAILED", r.TestCaseID+1))
		input, expected, actual := r.Input, r.ExpectedOutput, r.ActualOutput
		if i < len(hidden) && hidden[i] {
			input, expected = hiddenValue, hiddenValue
			if !strings.HasPrefix(actual, errorPrefix) {
				actual = hiddenValue
			}
		}
		lines = append(lines,
			"  Input: "+input,
			"  Expected: "+expected,
			"  Actual: "+actual,
		)
	}
	if message != "" {
		lines = append(lines, errorPrefix+message)
	}
	lines = append(lines, fmt.Sprintf("Summary: %d/%d test cases passed.", passed, len(results)))
	return lines
}
