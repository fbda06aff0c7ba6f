package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContainsString(t *testing.T) {
	table := []struct {
		slice  []string
		s      string
		result bool
	}{
		{[]string{"a", "b", "c"}, "b", true},
		{[]string{"a", "b", "c"}, "d", false},
	}

	for _, e := range table {
		if ContainsString(e.slice, e.s) != e.result {
			t.Errorf("ContainsString(%v, %s)", e.slice, e.s)
		}
	}
}

func TestHasPrefixInSlice(t *testing.T) {
	table := []struct {
		prefixes []string
		s        string
		result   bool
	}{
		{[]string{"loop", "zram", "ram"}, "loop0", true},
		{[]string{"loop", "zram", "ram"}, "zram1", true},
		{[]string{"loop", "zram", "ram"}, "sda", false},
	}

	a := assert.New(t)

	for _, e := range table {
		a.Equal(e.result, HasPrefixInSlice(e.prefixes, e.s))
	}
}
