package packify

import "github.com/delaneyj/toolbelt"

var (
	stringPool = toolbelt.New(func() []string { return make([]string, 0, 16) })
	pairPool   = toolbelt.New(func() []keyedValue { return make([]keyedValue, 0, 8) })
)

func getStringSlice(n int) []string {
	s := stringPool.Get()
	if cap(s) < n {
		return make([]string, n)
	}
	return s[:n]
}

func putStringSlice(s []string) {
	if s == nil {
		return
	}
	clear(s[:cap(s)])
	stringPool.Put(s[:0])
}

func getPairSlice(n int) []keyedValue {
	s := pairPool.Get()
	if cap(s) < n {
		return make([]keyedValue, n)
	}
	return s[:n]
}

func putPairSlice(s []keyedValue) {
	if s == nil {
		return
	}
	clear(s[:cap(s)])
	pairPool.Put(s[:0])
}
