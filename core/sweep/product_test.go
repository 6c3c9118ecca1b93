package sweep

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProduct_SizeAndOrder(t *testing.T) {
	tests := map[string]struct {
		params Parameters
		size   int
	}{
		"no parameters": {
			params: Parameters{},
			size:   1,
		},
		"single axis": {
			params: Parameters{{Name: "kT", Values: []interface{}{1.0, 2.0, 4.2}}},
			size:   3,
		},
		"three axes": {
			params: Parameters{
				{Name: "chains", Values: []interface{}{[]interface{}{1, 10}, []interface{}{5, 10}}},
				{Name: "density", Values: []interface{}{0.01}},
				{Name: "dt", Values: []interface{}{0.0001, 0.0003, 0.0005, 0.001, 0.002, 0.003, 0.005}},
			},
			size: 14,
		},
		"empty axis": {
			params: Parameters{
				{Name: "kT", Values: []interface{}{1.0}},
				{Name: "dt", Values: []interface{}{}},
			},
			size: 0,
		},
		"duplicate values kept": {
			params: Parameters{{Name: "seed", Values: []interface{}{42, 42}}},
			size:   2,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			names, combos := Product(tc.params)
			require.Len(t, combos, tc.size)
			assert.Equal(t, tc.params.Names(), names)
			assert.Equal(t, tc.size, tc.params.Size())
			for _, combo := range combos {
				require.Len(t, combo, len(tc.params))
			}
		})
	}
}

func TestProduct_LastAxisVariesFastest(t *testing.T) {
	params := Parameters{
		{Name: "a", Values: []interface{}{1, 2}},
		{Name: "b", Values: []interface{}{"x", "y", "z"}},
	}
	_, combos := Product(params)

	expected := [][]interface{}{
		{1, "x"}, {1, "y"}, {1, "z"},
		{2, "x"}, {2, "y"}, {2, "z"},
	}
	assert.Equal(t, expected, combos)
}

func TestProduct_CombinationsDistinct(t *testing.T) {
	params := Parameters{
		{Name: "a", Values: []interface{}{1, 2, 3}},
		{Name: "b", Values: []interface{}{true, false}},
		{Name: "c", Values: []interface{}{0.1, 0.2}},
	}
	_, combos := Product(params)

	seen := map[string]bool{}
	for _, combo := range combos {
		key := fmt.Sprint(combo...)
		assert.False(t, seen[key], "duplicate combination %v", combo)
		seen[key] = true
	}
	assert.Len(t, seen, 12)
}

func TestStatepoints(t *testing.T) {
	params := Parameters{
		{Name: "kT", Values: []interface{}{1.0}},
		{Name: "system_seed", Values: []interface{}{12, 23, 34}},
	}
	sps := Statepoints(params)
	require.Len(t, sps, 3)
	for i, seed := range []int{12, 23, 34} {
		assert.Equal(t, 1.0, sps[i]["kT"])
		assert.Equal(t, seed, sps[i]["system_seed"])
	}
}
