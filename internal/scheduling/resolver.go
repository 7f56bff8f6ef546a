package scheduling

import (
	"sort"
	"time"

	"github.com/SeanSwan/StudioAppBack/internal/models"
	"go.uber.org/zap"
)

// Interval is one typed slice of a trainer's resolved calendar.
// Intervals use half-open [Start, End) semantics throughout.
type Interval struct {
	Start time.Time               `json:"start"`
	End   time.Time               `json:"end"`
	Kind  models.AvailabilityKind `json:"kind"`
}

// Resolver merges recurring weekly rules with date-bound overrides into
// the effective availability for a window. Overrides beat recurring rules;
// where two overrides overlap the same instant the most recently created
// one wins and the overlap is logged as a data-quality warning. Time not
// covered by any rule is blocked.
type Resolver struct {
	logger *zap.Logger
}

func NewResolver(logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger}
}

type candidate struct {
	start     time.Time
	end       time.Time
	kind      models.AvailabilityKind
	override  bool
	createdAt time.Time
	ruleID    int64
}

// Resolve returns a gap-free partition of [windowStart, windowEnd) into
// typed intervals. The output is deterministic for a given rule set.
func (r *Resolver) Resolve(
	trainerID int64,
	rules []models.AvailabilityRule,
	windowStart time.Time,
	windowEnd time.Time,
) []Interval {
	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()
	if !windowEnd.After(windowStart) {
		return nil
	}

	candidates := expandRules(rules, windowStart, windowEnd)

	// Elementary segment boundaries: the window edges plus every candidate edge.
	boundarySet := map[time.Time]struct{}{
		windowStart: {},
		windowEnd:   {},
	}
	for _, c := range candidates {
		boundarySet[c.start] = struct{}{}
		boundarySet[c.end] = struct{}{}
	}
	boundaries := make([]time.Time, 0, len(boundarySet))
	for b := range boundarySet {
		boundaries = append(boundaries, b)
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i].Before(boundaries[j]) })

	resolved := make([]Interval, 0, len(boundaries))
	for i := 0; i < len(boundaries)-1; i++ {
		segStart, segEnd := boundaries[i], boundaries[i+1]
		kind := r.resolveSegment(trainerID, candidates, segStart, segEnd)

		// Coalesce with the previous interval when the kind is unchanged.
		if n := len(resolved); n > 0 && resolved[n-1].Kind == kind {
			resolved[n-1].End = segEnd
			continue
		}
		resolved = append(resolved, Interval{Start: segStart, End: segEnd, Kind: kind})
	}
	return resolved
}

func (r *Resolver) resolveSegment(
	trainerID int64,
	candidates []candidate,
	segStart time.Time,
	segEnd time.Time,
) models.AvailabilityKind {
	var best *candidate
	overrideCount := 0
	for i := range candidates {
		c := &candidates[i]
		if !c.start.Before(segEnd) || !c.end.After(segStart) {
			continue
		}
		if c.override {
			overrideCount++
		}
		if best == nil || beats(c, best) {
			best = c
		}
	}

	if overrideCount > 1 {
		r.logger.Warn("overlapping availability overrides, most recent wins",
			zap.Int64("trainer_id", trainerID),
			zap.Int64("winning_rule_id", best.ruleID),
			zap.Time("segment_start", segStart),
			zap.Time("segment_end", segEnd),
		)
	}

	if best == nil {
		return models.AvailabilityBlocked
	}
	return best.kind
}

// beats reports whether a takes precedence over b: overrides beat
// recurring rules, then recency, then rule id for a stable order.
func beats(a, b *candidate) bool {
	if a.override != b.override {
		return a.override
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.After(b.createdAt)
	}
	return a.ruleID > b.ruleID
}

func expandRules(rules []models.AvailabilityRule, windowStart, windowEnd time.Time) []candidate {
	candidates := make([]candidate, 0, len(rules))

	day := startOfDayUTC(windowStart)
	for ; day.Before(windowEnd); day = day.AddDate(0, 0, 1) {
		for _, rule := range rules {
			if !rule.IsActive {
				continue
			}
			if !ruleCoversDay(rule, day) {
				continue
			}
			start := day.Add(time.Duration(rule.StartMinute) * time.Minute)
			end := day.Add(time.Duration(rule.EndMinute) * time.Minute)
			if start, end = clip(start, end, windowStart, windowEnd); !end.After(start) {
				continue
			}
			candidates = append(candidates, candidate{
				start:     start,
				end:       end,
				kind:      rule.Kind,
				override:  !rule.IsRecurring,
				createdAt: rule.CreatedAt,
				ruleID:    rule.ID,
			})
		}
	}
	return candidates
}

func ruleCoversDay(rule models.AvailabilityRule, day time.Time) bool {
	if rule.IsRecurring {
		return rule.DayOfWeek != nil && int(day.Weekday()) == *rule.DayOfWeek
	}
	if rule.EffectiveFrom == nil || rule.EffectiveTo == nil {
		return false
	}
	from := startOfDayUTC(*rule.EffectiveFrom)
	to := startOfDayUTC(*rule.EffectiveTo)
	return !day.Before(from) && !day.After(to)
}

func clip(start, end, windowStart, windowEnd time.Time) (time.Time, time.Time) {
	if start.Before(windowStart) {
		start = windowStart
	}
	if end.After(windowEnd) {
		end = windowEnd
	}
	return start, end
}

func startOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
