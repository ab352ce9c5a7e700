package service

import (
	"encoding/json"
	"reflect"
	"strings"

	"codepractice/internal/evaluator/model"
)

// Compare reports whether actual matches expected under mode. JSON mode
// falls back to exact matching when either side does not decode.
func Compare(mode model.CompareMode, actual, expected string) bool {
	a := strings.TrimSpace(actual)
	e := strings.TrimSpace(expected)
	if mode == model.CompareJSON {
		var av, ev interface{}
		if json.Unmarshal([]byte(a), &av) == nil && json.Unmarshal([]byte(e), &ev) == nil {
			return reflect.DeepEqual(av, ev)
		}
	}
	return a == e
}
