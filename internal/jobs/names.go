package jobs

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	scheduledPrefix  = "scheduled-sync-"
	manualPrefix     = "manual-sync-"
	deactivatePrefix = "deactivate-"
)

// ScheduledName is the fixed job name of a schedule slot.
func ScheduledName(slot int) string {
	return scheduledPrefix + strconv.Itoa(slot)
}

// ManualName generates a unique manual-run job name.
func ManualName() string {
	return manualPrefix + uuid.NewString()
}

// DeactivateName generates a unique bulk-deactivation job name.
func DeactivateName() string {
	return deactivatePrefix + uuid.NewString()
}

// SlotFromName returns the schedule slot a job name belongs to.
func SlotFromName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, scheduledPrefix)
	if !ok {
		return 0, false
	}
	slot, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return slot, true
}

// IsManual reports whether name was produced by ManualName.
func IsManual(name string) bool {
	return strings.HasPrefix(name, manualPrefix)
}
