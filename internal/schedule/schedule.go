package schedule

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneType string

const (
	MilestoneTypeTime  MilestoneType = "TIME"
	MilestoneTypeEvent MilestoneType = "EVENT"
)

type AllocationType string

const (
	AllocationTypePercent  AllocationType = "PERCENT"
	AllocationTypeAbsolute AllocationType = "ABSOLUTE"
)

// Kind tells whether a schedule vests by elapsed time or by achieved milestones.
type Kind int

const (
	KindTime Kind = iota + 1
	KindMilestone
)

func (k Kind) String() string {
	switch k {
	case KindTime:
		return "time"
	case KindMilestone:
		return "milestone"
	}
	return "unknown"
}

// MilestoneInput is a free-form labelled value attached to a milestone, e.g. the KPI it tracks.
type MilestoneInput struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type MilestoneTemplate struct {
	Name           string           `json:"name"`
	Type           MilestoneType    `json:"type"`
	Allocation     string           `json:"allocation"`
	AllocationType AllocationType   `json:"allocation_type"`
	Sequence       int              `json:"sequence"`
	UnlockAt       *time.Time       `json:"unlock_at,omitempty"`
	Inputs         []MilestoneInput `json:"inputs,omitempty"`
}

// Details is the stored form of a vesting schedule. It is what templates and contracts persist;
// use Parse to get a validated Definition before computing anything with it.
//
// A schedule is time based when Milestones is empty and milestone based otherwise.
// Amounts are decimal strings in token base units.
type Details struct {
	TotalAllocation       string              `json:"total_allocation"`
	StartTime             *time.Time          `json:"start_time,omitempty"`
	EndTime               *time.Time          `json:"end_time,omitempty"`
	CliffSeconds          int64               `json:"cliff_seconds,omitempty"`
	UnlockIntervalSeconds int64               `json:"unlock_interval_seconds,omitempty"`
	CliffReleasePercent   string              `json:"cliff_release_percent,omitempty"`
	Milestones            []MilestoneTemplate `json:"milestones,omitempty"`
	Independent           bool                `json:"independent,omitempty"`
}

// ScheduleDefinitionError reports a malformed schedule.
type ScheduleDefinitionError struct {
	Field  string
	Reason string
}

func (e *ScheduleDefinitionError) Error() string {
	return fmt.Sprintf("invalid schedule: %s: %s", e.Field, e.Reason)
}

func definitionError(field, format string, args ...any) *ScheduleDefinitionError {
	return &ScheduleDefinitionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

type milestone struct {
	name     string
	typ      MilestoneType
	sequence int
	unlockAt *time.Time
	share    *big.Int
}

// Milestone is the read-only view of a parsed milestone.
type Milestone struct {
	Name     string
	Type     MilestoneType
	Sequence int
	UnlockAt *time.Time
	Share    *big.Int
}

// Definition is a validated schedule. The zero value is not usable; obtain one from Parse.
type Definition struct {
	kind         Kind
	total        *big.Int
	start        time.Time
	end          time.Time
	cliff        time.Duration
	interval     time.Duration
	cliffRelease decimal.Decimal
	milestones   []milestone
	independent  bool
}

var hundred = decimal.NewFromInt(100)

// Parse validates details and converts them into a Definition.
// Every failure is a *ScheduleDefinitionError.
func Parse(details Details) (Definition, error) {
	total, err := parseTotal(details.TotalAllocation)
	if err != nil {
		return Definition{}, err
	}

	if len(details.Milestones) > 0 {
		return parseMilestones(details, total)
	}
	return parseTime(details, total)
}

func parseTotal(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, definitionError("total_allocation", "is required")
	}
	total, err := ParseAmount(raw)
	if err != nil {
		return nil, definitionError("total_allocation", "%v", err)
	}
	if total.Sign() <= 0 {
		return nil, definitionError("total_allocation", "must be greater than zero")
	}
	return total, nil
}

func parseTime(details Details, total *big.Int) (Definition, error) {
	if details.Independent {
		return Definition{}, definitionError("independent", "only applies to milestone schedules")
	}
	if details.StartTime == nil {
		return Definition{}, definitionError("start_time", "is required for a time based schedule")
	}
	if details.EndTime == nil {
		return Definition{}, definitionError("end_time", "is required for a time based schedule")
	}
	start, end := details.StartTime.UTC(), details.EndTime.UTC()
	if !end.After(start) {
		return Definition{}, definitionError("end_time", "must be after start_time")
	}
	if details.CliffSeconds < 0 {
		return Definition{}, definitionError("cliff_seconds", "must not be negative")
	}
	if details.UnlockIntervalSeconds < 0 {
		return Definition{}, definitionError("unlock_interval_seconds", "must not be negative")
	}

	duration := end.Sub(start)
	// compared in seconds first, the multiplication below must not wrap
	if details.CliffSeconds > int64(duration/time.Second) {
		return Definition{}, definitionError("cliff_seconds", "cliff of %ds is longer than the %s schedule", details.CliffSeconds, duration)
	}
	if details.UnlockIntervalSeconds > math.MaxInt64/int64(time.Second) {
		return Definition{}, definitionError("unlock_interval_seconds", "%d seconds is out of range", details.UnlockIntervalSeconds)
	}
	cliff := time.Duration(details.CliffSeconds) * time.Second

	release := decimal.Zero
	if details.CliffReleasePercent != "" {
		var err error
		release, err = decimal.NewFromString(details.CliffReleasePercent)
		if err != nil {
			return Definition{}, definitionError("cliff_release_percent", "not a decimal: %q", details.CliffReleasePercent)
		}
		if release.IsNegative() || release.GreaterThan(hundred) {
			return Definition{}, definitionError("cliff_release_percent", "must be between 0 and 100")
		}
	}

	return Definition{
		kind:         KindTime,
		total:        total,
		start:        start,
		end:          end,
		cliff:        cliff,
		interval:     time.Duration(details.UnlockIntervalSeconds) * time.Second,
		cliffRelease: release,
	}, nil
}

func parseMilestones(details Details, total *big.Int) (Definition, error) {
	if details.StartTime != nil || details.EndTime != nil || details.CliffSeconds != 0 ||
		details.UnlockIntervalSeconds != 0 || details.CliffReleasePercent != "" {
		return Definition{}, definitionError("milestones", "cannot be combined with time based fields")
	}

	allocationType := details.Milestones[0].AllocationType
	allocations := make([]decimal.Decimal, len(details.Milestones))
	sum := decimal.Zero
	previous := 0

	for i, m := range details.Milestones {
		field := fmt.Sprintf("milestones[%d]", i)
		if m.Name == "" {
			return Definition{}, definitionError(field+".name", "is required")
		}
		switch m.Type {
		case MilestoneTypeTime:
			if m.UnlockAt == nil {
				return Definition{}, definitionError(field+".unlock_at", "is required for a TIME milestone")
			}
		case MilestoneTypeEvent:
		default:
			return Definition{}, definitionError(field+".type", "unknown milestone type %q", m.Type)
		}
		if m.Sequence < 1 {
			return Definition{}, definitionError(field+".sequence", "must start at 1")
		}
		if m.Sequence == previous {
			return Definition{}, definitionError(field+".sequence", "duplicate sequence %d", m.Sequence)
		}
		if m.Sequence < previous {
			return Definition{}, definitionError(field+".sequence", "milestones must be listed in sequence order")
		}
		previous = m.Sequence

		if m.AllocationType != AllocationTypePercent && m.AllocationType != AllocationTypeAbsolute {
			return Definition{}, definitionError(field+".allocation_type", "unknown allocation type %q", m.AllocationType)
		}
		if m.AllocationType != allocationType {
			return Definition{}, definitionError(field+".allocation_type", "all milestones must use %s", allocationType)
		}

		allocation, err := decimal.NewFromString(m.Allocation)
		if err != nil {
			return Definition{}, definitionError(field+".allocation", "not a decimal: %q", m.Allocation)
		}
		if !allocation.IsPositive() {
			return Definition{}, definitionError(field+".allocation", "must be greater than zero")
		}
		if allocationType == AllocationTypeAbsolute && !allocation.IsInteger() {
			return Definition{}, definitionError(field+".allocation", "absolute allocations are whole base units")
		}
		allocations[i] = allocation
		sum = sum.Add(allocation)
	}

	switch allocationType {
	case AllocationTypePercent:
		if !sum.Equal(hundred) {
			return Definition{}, definitionError("milestones", "percent allocations sum to %s, expected 100", sum)
		}
	case AllocationTypeAbsolute:
		if !sum.Equal(decimal.NewFromBigInt(total, 0)) {
			return Definition{}, definitionError("milestones", "allocations sum to %s, expected %s", sum, total)
		}
	}

	milestones := make([]milestone, len(details.Milestones))
	assigned := new(big.Int)
	for i, m := range details.Milestones {
		var share *big.Int
		switch {
		case i == len(details.Milestones)-1:
			share = new(big.Int).Sub(total, assigned)
		case allocationType == AllocationTypePercent:
			share = decimal.NewFromBigInt(total, 0).Mul(allocations[i]).Shift(-2).Floor().BigInt()
		default:
			share = allocations[i].BigInt()
		}
		assigned.Add(assigned, share)

		var unlockAt *time.Time
		if m.UnlockAt != nil {
			t := m.UnlockAt.UTC()
			unlockAt = &t
		}
		milestones[i] = milestone{
			name:     m.Name,
			typ:      m.Type,
			sequence: m.Sequence,
			unlockAt: unlockAt,
			share:    share,
		}
	}

	return Definition{
		kind:        KindMilestone,
		total:       total,
		milestones:  milestones,
		independent: details.Independent,
	}, nil
}

func (d Definition) Kind() Kind { return d.kind }

// Total returns a copy of the total allocation.
func (d Definition) Total() *big.Int {
	if d.total == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(d.total)
}

func (d Definition) Independent() bool { return d.independent }

func (d Definition) Milestones() []Milestone {
	out := make([]Milestone, len(d.milestones))
	for i, m := range d.milestones {
		out[i] = Milestone{
			Name:     m.name,
			Type:     m.typ,
			Sequence: m.sequence,
			UnlockAt: m.unlockAt,
			Share:    new(big.Int).Set(m.share),
		}
	}
	return out
}

// HasMilestone reports whether the schedule defines a milestone with the given sequence.
func (d Definition) HasMilestone(sequence int) bool {
	for _, m := range d.milestones {
		if m.sequence == sequence {
			return true
		}
	}
	return false
}

// AchievedByTime returns the sequences of TIME milestones whose unlock time is at or before t.
func (d Definition) AchievedByTime(t time.Time) []int {
	var achieved []int
	for _, m := range d.milestones {
		if m.typ == MilestoneTypeTime && m.unlockAt != nil && !m.unlockAt.After(t) {
			achieved = append(achieved, m.sequence)
		}
	}
	return achieved
}

// WithTotal returns the same schedule scaled to a different total allocation. Milestone
// shares are scaled pro rata and the last milestone takes the rounding remainder.
func (d Definition) WithTotal(total *big.Int) (Definition, error) {
	if d.kind == 0 {
		return Definition{}, errUnparsed
	}
	if total == nil || total.Sign() <= 0 {
		return Definition{}, definitionError("total_allocation", "must be greater than zero")
	}

	scaled := d
	scaled.total = new(big.Int).Set(total)
	if d.kind != KindMilestone {
		return scaled, nil
	}

	scaled.milestones = make([]milestone, len(d.milestones))
	assigned := new(big.Int)
	for i, m := range d.milestones {
		share := new(big.Int)
		if i == len(d.milestones)-1 {
			share.Sub(total, assigned)
		} else {
			share.Mul(m.share, total)
			share.Quo(share, d.total)
		}
		assigned.Add(assigned, share)
		m.share = share
		scaled.milestones[i] = m
	}
	return scaled, nil
}
