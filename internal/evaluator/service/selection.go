package service

import (
	"sort"

	"codepractice/internal/evaluator/model"
)

type selectedCase struct {
	index int
	model.TestCase
}

// selectCases picks the cases named by ids in problem order. Duplicate and
// out-of-range ids are ignored; no ids selects everything.
func selectCases(cases []model.TestCase, ids []int) []selectedCase {
	if len(ids) == 0 {
		out := make([]selectedCase, len(cases))
		for i, tc := range cases {
			out[i] = selectedCase{index: i, TestCase: tc}
		}
		return out
	}
	seen := make(map[int]struct{}, len(ids))
	picked := make([]int, 0, len(ids))
	for _, id := range ids {
		if id < 0 || id >= len(cases) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		picked = append(picked, id)
	}
	sort.Ints(picked)
	out := make([]selectedCase, len(picked))
	for i, idx := range picked {
		out[i] = selectedCase{index: idx, TestCase: cases[idx]}
	}
	return out
}
