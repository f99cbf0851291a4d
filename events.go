package consolesync

import "slices"

// HasEvent reports whether any event in the list carries the given name.
func HasEvent(events []Event, eventName string) bool {
	return slices.ContainsFunc(events, func(e Event) bool { return e.EventName == eventName })
}

// WithEvent returns a copy of events with event appended, unless an event of
// the same name is already present, in which case the copy is unchanged.
func WithEvent(events []Event, event Event) []Event {
	out := slices.Clone(events)
	if HasEvent(out, event.EventName) {
		return out
	}
	return append(out, event)
}

// WithoutEvent returns a copy of events with every entry named eventName removed.
func WithoutEvent(events []Event, eventName string) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.EventName != eventName {
			out = append(out, e)
		}
	}
	return out
}

// UniqueEventNames returns the distinct event names in order of first appearance.
func UniqueEventNames(events []Event) []string {
	seen := make(map[string]struct{}, len(events))
	names := make([]string, 0, len(events))
	for _, e := range events {
		if _, ok := seen[e.EventName]; ok {
			continue
		}
		seen[e.EventName] = struct{}{}
		names = append(names, e.EventName)
	}
	return names
}
