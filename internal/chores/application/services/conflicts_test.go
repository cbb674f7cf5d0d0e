package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choreminder/choreminder/internal/chores/domain"
	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
)

type mockMemberRepo struct {
	members map[uuid.UUID]*householdDomain.Member
}

func newMockMemberRepo() *mockMemberRepo {
	return &mockMemberRepo{members: make(map[uuid.UUID]*householdDomain.Member)}
}

func (m *mockMemberRepo) Create(ctx context.Context, member *householdDomain.Member) error {
	m.members[member.ID] = member
	return nil
}

func (m *mockMemberRepo) FindByID(ctx context.Context, id uuid.UUID) (*householdDomain.Member, error) {
	member, ok := m.members[id]
	if !ok {
		return nil, householdDomain.ErrMemberNotFound
	}
	return member, nil
}

func (m *mockMemberRepo) FindByHousehold(ctx context.Context, householdID uuid.UUID) ([]*householdDomain.Member, error) {
	var result []*householdDomain.Member
	for _, member := range m.members {
		if member.HouseholdID == householdID {
			result = append(result, member)
		}
	}
	return result, nil
}

func (m *mockMemberRepo) FindAdmins(ctx context.Context, householdID uuid.UUID) ([]*householdDomain.Member, error) {
	var result []*householdDomain.Member
	for _, member := range m.members {
		if member.HouseholdID == householdID && member.IsAdmin() {
			result = append(result, member)
		}
	}
	return result, nil
}

func addInstance(t *testing.T, repo *mockInstanceRepo, householdID, assigneeID uuid.UUID, title string, due time.Time, duration time.Duration) *domain.TaskInstance {
	t.Helper()
	instance, err := domain.NewOneOffInstance(householdID, assigneeID, title, due)
	require.NoError(t, err)
	instance.EstimatedDuration = duration
	require.NoError(t, repo.Create(context.Background(), instance))
	return instance
}

func TestConflictDetector_FindConflicts(t *testing.T) {
	householdID := uuid.New()
	personID := uuid.New()
	day := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	start := day.Add(-9 * time.Hour)
	end := start.AddDate(0, 0, 7)

	t.Run("day over the duration threshold is flagged", func(t *testing.T) {
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, newMockMemberRepo(), testLogger())

		addInstance(t, instances, householdID, personID, "Deep clean", day, 120*time.Minute)
		addInstance(t, instances, householdID, personID, "Mow lawn", day.Add(2*time.Hour), 90*time.Minute)

		conflicts, err := detector.FindConflicts(context.Background(), personID, start, end)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, 210*time.Minute, conflicts[0].TotalDuration)
		assert.Equal(t, 2, conflicts[0].Count)
		assert.NotEmpty(t, conflicts[0].Recommendation)
	})

	t.Run("day over the count threshold is flagged", func(t *testing.T) {
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, newMockMemberRepo(), testLogger())

		for i := 0; i < 6; i++ {
			addInstance(t, instances, householdID, personID, "Small chore", day.Add(time.Duration(i)*time.Hour), 10*time.Minute)
		}

		conflicts, err := detector.FindConflicts(context.Background(), personID, start, end)
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, 6, conflicts[0].Count)
	})

	t.Run("light day is not flagged", func(t *testing.T) {
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, newMockMemberRepo(), testLogger())

		addInstance(t, instances, householdID, personID, "Dishes", day, 20*time.Minute)
		addInstance(t, instances, householdID, personID, "Trash", day.Add(time.Hour), 5*time.Minute)

		conflicts, err := detector.FindConflicts(context.Background(), personID, start, end)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("completed instances do not count", func(t *testing.T) {
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, newMockMemberRepo(), testLogger())

		heavy := addInstance(t, instances, householdID, personID, "Deep clean", day, 240*time.Minute)
		require.NoError(t, heavy.Complete())

		conflicts, err := detector.FindConflicts(context.Background(), personID, start, end)
		require.NoError(t, err)
		assert.Empty(t, conflicts)
	})

	t.Run("flagged days come back in date order", func(t *testing.T) {
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, newMockMemberRepo(), testLogger())

		later := day.AddDate(0, 0, 2)
		addInstance(t, instances, householdID, personID, "Garage", later, 200*time.Minute)
		addInstance(t, instances, householdID, personID, "Windows", day, 200*time.Minute)

		conflicts, err := detector.FindConflicts(context.Background(), personID, start, end)
		require.NoError(t, err)
		require.Len(t, conflicts, 2)
		assert.True(t, conflicts[0].Date.Before(conflicts[1].Date))
	})
}

func TestConflictDetector_OptimizeHousehold(t *testing.T) {
	householdID := uuid.New()
	day := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

	newHouseholdMember := func(t *testing.T, repo *mockMemberRepo, name string) *householdDomain.Member {
		t.Helper()
		member, err := householdDomain.NewMember(householdID, name, householdDomain.RoleMember)
		require.NoError(t, err)
		require.NoError(t, repo.Create(context.Background(), member))
		return member
	}

	t.Run("moves the shortest task from overloaded to underloaded", func(t *testing.T) {
		members := newMockMemberRepo()
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, members, testLogger())

		busy := newHouseholdMember(t, members, "Busy")
		idle := newHouseholdMember(t, members, "Idle")

		addInstance(t, instances, householdID, busy.ID, "Deep clean", day, 180*time.Minute)
		shortest := addInstance(t, instances, householdID, busy.ID, "Trash", day, 10*time.Minute)

		suggestions, err := detector.OptimizeHousehold(context.Background(), householdID, day)
		require.NoError(t, err)
		require.Len(t, suggestions, 1)
		assert.Equal(t, shortest.ID, suggestions[0].InstanceID)
		assert.Equal(t, busy.ID, suggestions[0].FromMember)
		assert.Equal(t, idle.ID, suggestions[0].ToMember)
		assert.NotEmpty(t, suggestions[0].Reason)
	})

	t.Run("balanced household needs no moves", func(t *testing.T) {
		members := newMockMemberRepo()
		instances := newMockInstanceRepo()
		detector := NewConflictDetector(instances, members, testLogger())

		a := newHouseholdMember(t, members, "A")
		b := newHouseholdMember(t, members, "B")

		addInstance(t, instances, householdID, a.ID, "Dishes", day, 30*time.Minute)
		addInstance(t, instances, householdID, b.ID, "Vacuum", day, 30*time.Minute)

		suggestions, err := detector.OptimizeHousehold(context.Background(), householdID, day)
		require.NoError(t, err)
		assert.Empty(t, suggestions)
	})

	t.Run("empty day yields nothing", func(t *testing.T) {
		members := newMockMemberRepo()
		detector := NewConflictDetector(newMockInstanceRepo(), members, testLogger())
		newHouseholdMember(t, members, "Solo")

		suggestions, err := detector.OptimizeHousehold(context.Background(), householdID, day)
		require.NoError(t, err)
		assert.Empty(t, suggestions)
	})
}
