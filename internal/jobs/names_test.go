package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobNames(t *testing.T) {
	slot, ok := SlotFromName(ScheduledName(2))
	assert.True(t, ok)
	assert.Equal(t, 2, slot)

	manual := ManualName()
	assert.True(t, IsManual(manual))
	_, ok = SlotFromName(manual)
	assert.False(t, ok)

	_, ok = SlotFromName("scheduled-sync-x")
	assert.False(t, ok)
	assert.NotEqual(t, ManualName(), ManualName())
	assert.False(t, IsManual(DeactivateName()))
}
