package reminder

import (
	"fmt"
	"sort"
)

// Milestone is a configured trigger point: send a reminder this many
// days before a policy expires. Milestones are static configuration,
// never persisted per policy.
type Milestone struct {
	ID       string
	LeadDays int
	Urgent   bool
}

// Well-known milestone IDs for the default 7/3-day configuration.
const (
	MilestoneSevenDays = "SEVEN_DAYS"
	MilestoneThreeDays = "THREE_DAYS"
)

var idByLeadDays = map[int]string{
	7: MilestoneSevenDays,
	3: MilestoneThreeDays,
}

// MilestonesFromLeadDays builds the milestone set for the given lead
// times, sorted longest lead first. The shortest lead is marked urgent.
// Lead days without a well-known name get a generated DAYS_N id.
func MilestonesFromLeadDays(leadDays []int) []Milestone {
	days := make([]int, len(leadDays))
	copy(days, leadDays)
	sort.Sort(sort.Reverse(sort.IntSlice(days)))

	milestones := make([]Milestone, 0, len(days))
	for i, d := range days {
		id, ok := idByLeadDays[d]
		if !ok {
			id = fmt.Sprintf("DAYS_%d", d)
		}
		milestones = append(milestones, Milestone{
			ID:       id,
			LeadDays: d,
			Urgent:   i == len(days)-1,
		})
	}

	return milestones
}

// DefaultMilestones returns the standard 7-day and 3-day reminders.
func DefaultMilestones() []Milestone {
	return MilestonesFromLeadDays([]int{7, 3})
}
