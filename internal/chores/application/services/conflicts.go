package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/choreminder/choreminder/internal/chores/domain"
	householdDomain "github.com/choreminder/choreminder/internal/household/domain"
)

// Thresholds above which a day counts as overloaded.
const (
	// MaxDailyMinutes is the cumulative estimated effort a member can
	// reasonably carry in one day.
	MaxDailyMinutes = 180
	// HeavyDailyMinutes is the level at which the recommendation turns
	// from caution to rebalancing.
	HeavyDailyMinutes = 240
	// MaxDailyCount is the number of chores per day before the day is
	// flagged regardless of duration.
	MaxDailyCount = 5
)

// Workload classification bounds relative to the household average.
const (
	overloadFactor  = 1.5
	underloadFactor = 0.5
)

// DayConflict reports one overloaded calendar day for a member.
type DayConflict struct {
	Date           time.Time
	Instances      []*domain.TaskInstance
	TotalDuration  time.Duration
	Count          int
	Recommendation string
}

// ReassignmentSuggestion proposes moving a task between members to
// balance a day's workload.
type ReassignmentSuggestion struct {
	InstanceID uuid.UUID
	FromMember uuid.UUID
	ToMember   uuid.UUID
	Reason     string
}

// ConflictDetector flags overloaded days and proposes load-balancing
// reassignments across household members.
type ConflictDetector struct {
	instances domain.InstanceRepository
	members   householdDomain.MemberRepository
	logger    *slog.Logger
}

// NewConflictDetector creates a new conflict detector.
func NewConflictDetector(
	instances domain.InstanceRepository,
	members householdDomain.MemberRepository,
	logger *slog.Logger,
) *ConflictDetector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConflictDetector{
		instances: instances,
		members:   members,
		logger:    logger,
	}
}

// FindConflicts scans a member's open instances in [start, end) and
// returns one record per flagged calendar day, ordered by date.
func (d *ConflictDetector) FindConflicts(ctx context.Context, personID uuid.UUID, start, end time.Time) ([]DayConflict, error) {
	open := []domain.InstanceStatus{domain.InstancePending, domain.InstanceInProgress}
	instances, err := d.instances.FindByAssigneeInRange(ctx, personID, start, end, open)
	if err != nil {
		return nil, err
	}

	byDay := make(map[time.Time][]*domain.TaskInstance)
	for _, instance := range instances {
		day := dayOf(instance.DueDate)
		byDay[day] = append(byDay[day], instance)
	}

	var conflicts []DayConflict
	for day, dayInstances := range byDay {
		var total time.Duration
		for _, instance := range dayInstances {
			total += instance.EstimatedDuration
		}
		count := len(dayInstances)

		if total <= MaxDailyMinutes*time.Minute && count <= MaxDailyCount {
			continue
		}

		conflicts = append(conflicts, DayConflict{
			Date:           day,
			Instances:      dayInstances,
			TotalDuration:  total,
			Count:          count,
			Recommendation: recommend(total, count),
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Date.Before(conflicts[j].Date)
	})

	d.logger.Debug("conflict scan completed",
		"person_id", personID,
		"days_flagged", len(conflicts),
	)

	return conflicts, nil
}

// OptimizeHousehold computes per-member workload for a day, classifies
// members against the household average, and proposes moving each
// overloaded member's shortest task to an underloaded one.
func (d *ConflictDetector) OptimizeHousehold(ctx context.Context, householdID uuid.UUID, date time.Time) ([]ReassignmentSuggestion, error) {
	members, err := d.members.FindByHousehold(ctx, householdID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	instances, err := d.instances.FindByHouseholdOnDate(ctx, householdID, date)
	if err != nil {
		return nil, err
	}

	load := make(map[uuid.UUID]time.Duration, len(members))
	tasksFor := make(map[uuid.UUID][]*domain.TaskInstance)
	for _, m := range members {
		load[m.ID] = 0
	}
	for _, instance := range instances {
		load[instance.AssigneeID] += instance.EstimatedDuration
		tasksFor[instance.AssigneeID] = append(tasksFor[instance.AssigneeID], instance)
	}

	var total time.Duration
	for _, v := range load {
		total += v
	}
	average := total / time.Duration(len(members))
	if average == 0 {
		return nil, nil
	}

	var overloaded, underloaded []*householdDomain.Member
	for _, m := range members {
		switch {
		case float64(load[m.ID]) > float64(average)*overloadFactor:
			overloaded = append(overloaded, m)
		case float64(load[m.ID]) < float64(average)*underloadFactor:
			underloaded = append(underloaded, m)
		}
	}
	if len(overloaded) == 0 || len(underloaded) == 0 {
		return nil, nil
	}

	// Receivers take moves lightest-first.
	sort.Slice(underloaded, func(i, j int) bool {
		return load[underloaded[i].ID] < load[underloaded[j].ID]
	})

	var suggestions []ReassignmentSuggestion
	for i, from := range overloaded {
		tasks := tasksFor[from.ID]
		if len(tasks) == 0 {
			continue
		}
		shortest := tasks[0]
		for _, t := range tasks[1:] {
			if t.EstimatedDuration < shortest.EstimatedDuration {
				shortest = t
			}
		}

		to := underloaded[i%len(underloaded)]
		suggestions = append(suggestions, ReassignmentSuggestion{
			InstanceID: shortest.ID,
			FromMember: from.ID,
			ToMember:   to.ID,
			Reason: fmt.Sprintf(
				"%s carries %d min on %s while %s carries %d min; moving %q (%d min) evens the day out",
				from.Name, int(load[from.ID].Minutes()), date.Format("2006-01-02"),
				to.Name, int(load[to.ID].Minutes()),
				shortest.Title, int(shortest.EstimatedDuration.Minutes()),
			),
		})
	}

	return suggestions, nil
}

func recommend(total time.Duration, count int) string {
	switch {
	case total > HeavyDailyMinutes*time.Minute:
		return fmt.Sprintf("This day carries %d minutes of chores; consider moving some to a lighter day or another member", int(total.Minutes()))
	case count > MaxDailyCount:
		return fmt.Sprintf("This day has %d separate chores; consider consolidating or spreading them out", count)
	default:
		return "This day is busier than usual; keep an eye on it"
	}
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
