package roster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileClassifies(t *testing.T) {
	now := time.Now()
	existing := []MirrorRecord{
		{StudentID: "B", Name: "Bee", CampusEntry: "Y"},
		{StudentID: "C", Name: "Cee", CampusEntry: "Y"},
		{StudentID: "D", Name: "Dee", Archived: true},
	}
	incoming := []SourceRecord{
		{StudentID: "A", Name: "Ay"},
		{StudentID: "B", Name: "Bee", CampusEntry: "Y"},
		{StudentID: "C", Name: "Cee", CampusEntry: "N"},
		{StudentID: "D", Name: "Dee"},
	}

	res := Reconcile(incoming, existing, now)
	require.Len(t, res.ToCreate, 1)
	assert.Equal(t, "A", res.ToCreate[0].StudentID)
	require.Len(t, res.ToUpdate, 2)
	assert.Equal(t, "C", res.ToUpdate[0].StudentID)
	assert.Equal(t, "N", res.ToUpdate[0].CampusEntry)
	assert.Equal(t, "D", res.ToUpdate[1].StudentID)
	assert.False(t, res.ToUpdate[1].Archived)
	assert.Equal(t, 1, res.Unchanged)
}

func TestReconcileIsIdempotentAfterMerge(t *testing.T) {
	now := time.Now()
	existing := []MirrorRecord{{StudentID: "1", Name: "Old"}}
	incoming := []SourceRecord{
		{StudentID: "1", Name: "New", Photo: "p1"},
		{StudentID: "2", Name: "Two", CardID: "C2"},
	}

	first := Reconcile(incoming, existing, now)
	assert.Len(t, first.ToCreate, 1)
	assert.Len(t, first.ToUpdate, 1)

	merged := Merge(existing, first)
	second := Reconcile(incoming, merged, now)
	assert.Empty(t, second.ToCreate)
	assert.Empty(t, second.ToUpdate)
	assert.Equal(t, 2, second.Unchanged)
}

func TestReconcileDuplicateIncomingIDs(t *testing.T) {
	res := Reconcile([]SourceRecord{
		{StudentID: "1", Name: "First"},
		{StudentID: "1", Name: "First"},
		{StudentID: "1", Name: "Second"},
	}, nil, time.Now())
	assert.Len(t, res.ToCreate, 1)
	assert.Equal(t, 1, res.Unchanged)
	require.Len(t, res.ToUpdate, 1)
	assert.Equal(t, "Second", res.ToUpdate[0].Name)
}
