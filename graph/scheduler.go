package graph

import (
	"sort"
	"time"
)

// schedulerEvent is one pending timer entry: a fire time plus an optional
// tag. Anonymous entries carry an empty tag and may coexist; at most one
// entry exists per named tag.
type schedulerEvent struct {
	when time.Time
	tag  string
}

// NodeScheduler is a per-node tagged timer queue. Nodes use it to arrange
// their own future wakeups: the head entry is propagated to the owning
// graph's schedule vector so the executor knows the node's next fire time.
//
// Invariants:
//   - the head entry has the smallest fire time;
//   - after Advance no entries at or before the current engine time remain;
//   - at most one entry exists per named tag (re-scheduling a tag replaces
//     the prior entry).
type NodeScheduler struct {
	node   Node
	events []schedulerEvent
	tags   map[string]time.Time
}

// NewNodeScheduler creates a scheduler bound to its owning node.
func NewNodeScheduler(node Node) *NodeScheduler {
	return &NodeScheduler{
		node: node,
		tags: make(map[string]time.Time),
	}
}

// NextScheduledTime returns the earliest pending fire time, or MinDT when
// nothing is scheduled.
func (s *NodeScheduler) NextScheduledTime() time.Time {
	if len(s.events) == 0 {
		return MinDT
	}
	return s.events[0].when
}

// IsScheduled reports whether any timer entry is pending.
func (s *NodeScheduler) IsScheduled() bool {
	return len(s.events) > 0
}

// IsScheduledNow reports whether the head entry fires at the current engine
// time.
func (s *NodeScheduler) IsScheduledNow() bool {
	if len(s.events) == 0 {
		return false
	}
	ctx := s.clock()
	if ctx == nil {
		return false
	}
	return s.events[0].when.Equal(ctx.CurrentEngineTime())
}

// HasTag reports whether a named entry is pending.
func (s *NodeScheduler) HasTag(tag string) bool {
	_, ok := s.tags[tag]
	return ok
}

// PopTag removes the entry with the given tag and returns its fire time.
// The second return is false if no such entry exists.
func (s *NodeScheduler) PopTag(tag string) (time.Time, bool) {
	when, ok := s.tags[tag]
	if !ok {
		return time.Time{}, false
	}
	delete(s.tags, tag)
	s.remove(schedulerEvent{when: when, tag: tag})
	return when, true
}

// Schedule adds an entry firing at the absolute engine time when. A
// non-empty tag replaces any prior entry with the same tag.
//
// Once the node is started, scheduling at or before the current engine time
// is silently ignored; self-wakeups observed during a tick therefore fire no
// earlier than the next distinguishable instant. If the new entry becomes
// the head while the node is started, the owning graph is informed so the
// executor will not sleep past it.
func (s *NodeScheduler) Schedule(when time.Time, tag string) {
	if tag != "" {
		if prior, ok := s.tags[tag]; ok {
			s.remove(schedulerEvent{when: prior, tag: tag})
			delete(s.tags, tag)
		}
	}
	floor := MinDT
	started := s.node.IsStarted()
	if started {
		if ctx := s.clock(); ctx != nil {
			floor = ctx.CurrentEngineTime()
		}
	}
	if !when.After(floor) {
		return
	}
	if tag != "" {
		s.tags[tag] = when
	}
	currentFirst := MaxDT
	if len(s.events) > 0 {
		currentFirst = s.events[0].when
	}
	s.insert(schedulerEvent{when: when, tag: tag})
	if started && currentFirst.After(s.events[0].when) {
		s.node.Graph().ScheduleNode(s.node.NodeNdx(), s.events[0].when)
	}
}

// ScheduleIn adds an entry firing the given duration after the current
// engine time.
func (s *NodeScheduler) ScheduleIn(delay time.Duration, tag string) {
	ctx := s.clock()
	if ctx == nil {
		return
	}
	s.Schedule(ctx.CurrentEngineTime().Add(delay), tag)
}

// UnSchedule removes the entry with the given tag; with an empty tag it
// removes the head entry instead.
func (s *NodeScheduler) UnSchedule(tag string) {
	if tag != "" {
		if when, ok := s.tags[tag]; ok {
			s.remove(schedulerEvent{when: when, tag: tag})
			delete(s.tags, tag)
		}
		return
	}
	if len(s.events) > 0 {
		head := s.events[0]
		s.events = s.events[1:]
		if head.tag != "" {
			delete(s.tags, head.tag)
		}
	}
}

// Reset removes every pending entry.
func (s *NodeScheduler) Reset() {
	s.events = s.events[:0]
	for tag := range s.tags {
		delete(s.tags, tag)
	}
}

// Advance drops entries at or before the current engine time and, if any
// remain, informs the owning graph of the new head fire time.
func (s *NodeScheduler) Advance() {
	ctx := s.clock()
	if ctx == nil {
		return
	}
	until := ctx.CurrentEngineTime()
	for len(s.events) > 0 && !s.events[0].when.After(until) {
		head := s.events[0]
		s.events = s.events[1:]
		if head.tag != "" {
			delete(s.tags, head.tag)
		}
	}
	if len(s.events) > 0 {
		s.node.Graph().ScheduleNode(s.node.NodeNdx(), s.events[0].when)
	}
}

func (s *NodeScheduler) clock() ExecutionContext {
	if s.node.Graph() == nil {
		return nil
	}
	return s.node.Graph().Context()
}

// insert keeps events ordered by (when, tag).
func (s *NodeScheduler) insert(ev schedulerEvent) {
	i := sort.Search(len(s.events), func(i int) bool {
		e := s.events[i]
		if !e.when.Equal(ev.when) {
			return e.when.After(ev.when)
		}
		return e.tag >= ev.tag
	})
	s.events = append(s.events, schedulerEvent{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = ev
}

// remove deletes the exact (when, tag) entry if present.
func (s *NodeScheduler) remove(ev schedulerEvent) {
	for i, e := range s.events {
		if e.when.Equal(ev.when) && e.tag == ev.tag {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return
		}
	}
}
