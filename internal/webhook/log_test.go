package webhook

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/apc939/asistentehc/pkg/model"
)

func TestDeliveryLog_NewestFirst(t *testing.T) {
	l := NewDeliveryLog()
	l.Record(model.DeliveryStatusSuccess, 10, "first")
	l.Record(model.DeliveryStatusError, 20, "second")

	entries := l.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "first", entries[1].Message)
}

func TestDeliveryLog_EvictsOldest(t *testing.T) {
	l := NewDeliveryLog()
	for i := 0; i < 15; i++ {
		l.Record(model.DeliveryStatusSuccess, float64(i), fmt.Sprintf("entry-%d", i))
	}

	entries := l.Entries()
	assert.Len(t, entries, maxLogEntries)
	assert.Equal(t, "entry-14", entries[0].Message)
	assert.Equal(t, "entry-5", entries[len(entries)-1].Message)
}

func TestDeliveryLog_Clear(t *testing.T) {
	l := NewDeliveryLog()
	l.Record(model.DeliveryStatusSuccess, 1, "x")
	l.Clear()
	assert.Empty(t, l.Entries())
}

func TestDeliveryLog_BoundHolds(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("log never exceeds its bound and keeps the newest entries", prop.ForAll(
		func(n int) bool {
			l := NewDeliveryLog()
			for i := 0; i < n; i++ {
				l.Record(model.DeliveryStatusSuccess, 0, fmt.Sprintf("entry-%d", i))
			}

			entries := l.Entries()
			want := n
			if want > maxLogEntries {
				want = maxLogEntries
			}
			if len(entries) != want {
				return false
			}
			for i, e := range entries {
				if e.Message != fmt.Sprintf("entry-%d", n-1-i) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
