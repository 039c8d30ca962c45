package policy

import (
	"testing"
	"time"

	"github.com/madebyjamstudios/jammonitor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func wan(name string, c model.Category) model.WANInterface {
	return model.WANInterface{Name: name, Multipath: c, Up: true}
}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.Zero(t, s.MergeAuthoritative([]model.WANInterface{
		wan("lan1", model.CategoryPrimary),
		wan("lan2", model.CategoryBonded),
		wan("sfp-lan", model.CategoryStandby),
		wan("lan3", model.CategoryDisabled),
	}))
	return s
}

func primaries(s *Store) []string {
	var out []string
	for _, e := range s.Entries() {
		if e.Local == model.CategoryPrimary {
			out = append(out, e.Name)
		}
	}
	return out
}

func TestApplyIntentPrimarySwap(t *testing.T) {
	s := seeded(t)

	a, err := s.ApplyIntent("sfp-lan", model.CategoryPrimary, now)
	require.NoError(t, err)
	require.Equal(t, []string{"sfp-lan"}, primaries(s))

	old, _ := s.Get("lan1")
	require.Equal(t, model.CategoryBonded, old.Local)
	require.Equal(t, model.CategoryPrimary, old.LastKnown)
	require.True(t, old.Pending())

	moved, _ := s.Get("sfp-lan")
	require.True(t, moved.Pending())
	require.Equal(t, now, moved.PendingSince)

	untouched, _ := s.Get("lan2")
	require.False(t, untouched.Pending())

	// full assignment, grouped by category, moved entries last in their group
	require.Equal(t, []string{"sfp-lan", "lan2", "lan1", "lan3"}, a.Order)
	require.Equal(t, map[string]model.Category{
		"sfp-lan": model.CategoryPrimary,
		"lan1":    model.CategoryBonded,
		"lan2":    model.CategoryBonded,
		"lan3":    model.CategoryDisabled,
	}, a.Modes)
}

func TestApplyIntentErrors(t *testing.T) {
	s := seeded(t)

	_, err := s.ApplyIntent("wwan0", model.CategoryBonded, now)
	require.ErrorIs(t, err, ErrUnknownInterface)

	_, err = s.ApplyIntent("lan2", model.Category("turbo"), now)
	require.ErrorIs(t, err, ErrInvalidCategory)

	_, err = s.ApplyIntent("lan2", model.CategoryBonded, now)
	require.ErrorIs(t, err, ErrNoChange)
	require.False(t, s.HasPending())
}

func TestMergeConvergesPending(t *testing.T) {
	s := seeded(t)
	_, err := s.ApplyIntent("lan2", model.CategoryStandby, now)
	require.NoError(t, err)

	// backend has not caught up yet
	pending := s.MergeAuthoritative([]model.WANInterface{
		wan("lan1", model.CategoryPrimary),
		wan("lan2", model.CategoryBonded),
		wan("sfp-lan", model.CategoryStandby),
		wan("lan3", model.CategoryDisabled),
	})
	require.Equal(t, 1, pending)
	e, _ := s.Get("lan2")
	require.Equal(t, model.CategoryStandby, e.Local)
	require.Equal(t, model.CategoryBonded, e.LastKnown)

	pending = s.MergeAuthoritative([]model.WANInterface{
		wan("lan1", model.CategoryPrimary),
		wan("lan2", model.CategoryStandby),
		wan("sfp-lan", model.CategoryStandby),
		wan("lan3", model.CategoryDisabled),
	})
	require.Zero(t, pending)
	e, _ = s.Get("lan2")
	require.False(t, e.Pending())
	require.Equal(t, model.CategoryStandby, e.LastKnown)
}

func TestMergeOverwritesConfirmedAndDropsOmitted(t *testing.T) {
	s := seeded(t)

	s.MergeAuthoritative([]model.WANInterface{
		wan("lan2", model.CategoryPrimary),
		wan("lan1", model.CategoryBonded),
		{Name: "lan4", Multipath: ""},
	})

	names := make([]string, 0)
	for _, e := range s.Entries() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"lan2", "lan1", "lan4"}, names)

	e, ok := s.Get("lan4")
	require.True(t, ok)
	require.Equal(t, model.CategoryDisabled, e.Local)

	_, ok = s.Get("sfp-lan")
	require.False(t, ok)
}

func TestRollbackRestoresLastKnown(t *testing.T) {
	s := seeded(t)
	_, err := s.ApplyIntent("lan3", model.CategoryPrimary, now)
	require.NoError(t, err)
	require.True(t, s.HasPending())

	s.Rollback()
	require.False(t, s.HasPending())
	require.Equal(t, []string{"lan1"}, primaries(s))
	e, _ := s.Get("lan3")
	require.Equal(t, model.CategoryDisabled, e.Local)
}

func TestExpirePendingKeepsLocal(t *testing.T) {
	s := seeded(t)
	_, err := s.ApplyIntent("lan3", model.CategoryPrimary, now)
	require.NoError(t, err)

	require.Equal(t, 2, s.ExpirePending())
	require.False(t, s.HasPending())
	require.Equal(t, []string{"lan3"}, primaries(s))

	// with nothing pending the next fetch is authoritative again
	s.MergeAuthoritative([]model.WANInterface{wan("lan1", model.CategoryPrimary), wan("lan3", model.CategoryDisabled)})
	assert.Equal(t, []string{"lan1"}, primaries(s))
}

func TestSecondPrimaryIntentSupersedes(t *testing.T) {
	s := seeded(t)
	_, err := s.ApplyIntent("lan2", model.CategoryPrimary, now)
	require.NoError(t, err)
	a, err := s.ApplyIntent("lan3", model.CategoryPrimary, now.Add(time.Second))
	require.NoError(t, err)

	require.Equal(t, []string{"lan3"}, primaries(s))
	require.Equal(t, model.CategoryPrimary, a.Modes["lan3"])
	require.Equal(t, model.CategoryBonded, a.Modes["lan2"])
	require.Equal(t, model.CategoryBonded, a.Modes["lan1"])
}

func TestGroups(t *testing.T) {
	s := seeded(t)
	_, err := s.ApplyIntent("lan3", model.CategoryStandby, now)
	require.NoError(t, err)

	groups := s.Groups()
	require.Len(t, groups, 4)
	require.Equal(t, "Primary", groups[0].Label)
	require.Equal(t, "lan1", groups[0].Interfaces[0].Name)

	standby := groups[2]
	require.Equal(t, model.CategoryStandby, standby.Category)
	require.Len(t, standby.Interfaces, 2)
	require.Equal(t, "lan3", standby.Interfaces[1].Name)
	require.True(t, standby.Interfaces[1].Pending)
	require.NotNil(t, standby.Interfaces[1].PendingSince)

	require.Empty(t, groups[3].Interfaces)
	require.True(t, s.Loaded())
}
