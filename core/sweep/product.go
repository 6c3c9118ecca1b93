// Package sweep enumerates parameter spaces into statepoints.
package sweep

import "ellipflow/core/models"

// Parameter is one named axis of a sweep with its candidate values
type Parameter struct {
	Name   string
	Values []interface{}
}

// Parameters is an ordered set of sweep axes. Order is declaration order.
type Parameters []Parameter

// Names returns the parameter names in declaration order
func (p Parameters) Names() []string {
	names := make([]string, len(p))
	for i, param := range p {
		names[i] = param.Name
	}
	return names
}

// Size returns the number of combinations Product will yield
func (p Parameters) Size() int {
	n := 1
	for _, param := range p {
		n *= len(param.Values)
	}
	return n
}

// Product returns the parameter names and the Cartesian product of their values.
// The last parameter varies fastest. Empty value lists produce no combinations;
// duplicate values are kept.
func Product(params Parameters) ([]string, [][]interface{}) {
	names := params.Names()
	size := params.Size()
	combos := make([][]interface{}, 0, size)
	if size == 0 {
		return names, combos
	}

	idx := make([]int, len(params))
	for {
		combo := make([]interface{}, len(params))
		for i, param := range params {
			combo[i] = param.Values[idx[i]]
		}
		combos = append(combos, combo)

		// odometer increment from the last axis
		i := len(params) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(params[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return names, combos
		}
	}
}

// Statepoints zips the names with every combination
func Statepoints(params Parameters) []models.Statepoint {
	names, combos := Product(params)
	statepoints := make([]models.Statepoint, len(combos))
	for i, combo := range combos {
		sp := make(models.Statepoint, len(names))
		for j, name := range names {
			sp[name] = combo[j]
		}
		statepoints[i] = sp
	}
	return statepoints
}
