package router

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQTable_ValuesDoNotCreate(t *testing.T) {
	tbl := newQTable(3)

	assert.Equal(t, []float64{0, 0, 0}, tbl.values("missing"))
	assert.Equal(t, 0.0, tbl.maxValue("missing"))
	assert.Equal(t, 0, tbl.len())

	e := tbl.getOrCreate("k")
	e.Values[1] = -2
	e.Values[2] = -1
	assert.Equal(t, 0.0, tbl.maxValue("k"))
	e.Values[0] = -3
	assert.Equal(t, -1.0, tbl.maxValue("k"))

	got := tbl.values("k")
	got[0] = 99
	assert.Equal(t, -3.0, e.Values[0], "values must return a copy")
}

func TestQTable_Prune(t *testing.T) {
	tbl := newQTable(2)
	base := time.Unix(1000, 0)
	for i := 0; i < 10; i++ {
		tbl.touch(tbl.getOrCreate(fmt.Sprintf("k%d", i)), base.Add(time.Duration(i)*time.Second))
	}

	assert.Nil(t, tbl.prune(10, ""))

	tbl.touch(tbl.getOrCreate("k10"), base.Add(time.Hour))
	evicted := tbl.prune(10, "k10")

	assert.Equal(t, []string{"k0", "k1", "k2"}, evicted)
	assert.Equal(t, 8, tbl.len())
	_, ok := tbl.get("k10")
	assert.True(t, ok)
}

func TestQTable_PruneKeepsActiveEntryEvenIfOldest(t *testing.T) {
	tbl := newQTable(1)
	same := time.Unix(1000, 0)
	for i := 0; i < 6; i++ {
		tbl.touch(tbl.getOrCreate(fmt.Sprintf("k%d", i)), same)
	}

	evicted := tbl.prune(5, "k0")

	assert.Len(t, evicted, 2)
	assert.Equal(t, []string{"k1", "k2"}, evicted, "ties broken by touch order")
	_, ok := tbl.get("k0")
	assert.True(t, ok)
}
