package criteria

import (
	"github.com/viant/agentpay/service/dao"
)

// FilterByState reports whether state satisfies every Status parameter.
// Unknown parameters are ignored.
func FilterByState(state string, parameters []*dao.Parameter) bool {
	for _, parameter := range parameters {
		if parameter == nil || parameter.Name != dao.StatusParameter {
			continue
		}
		if !matches(state, parameter.Value) {
			return false
		}
	}
	return true
}

// Match applies FilterByState to records exposing their state.
func Match(record interface{}, parameters []*dao.Parameter) bool {
	if len(parameters) == 0 {
		return true
	}
	stateful, ok := record.(dao.Record)
	if !ok {
		return true
	}
	return FilterByState(stateful.State(), parameters)
}

func matches(state string, value interface{}) bool {
	switch actual := value.(type) {
	case string:
		return state == actual
	case []string:
		for _, s := range actual {
			if state == s {
				return true
			}
		}
		return false
	}
	return true
}
