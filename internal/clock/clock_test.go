package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindows(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	at := time.Date(2026, time.March, 17, 15, 4, 5, 6, loc)
	assert.Equal(t, time.Date(2026, time.March, 17, 0, 0, 0, 0, loc), StartOfDay(at))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, loc), StartOfMonth(at))
}
