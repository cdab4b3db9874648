package expiry

import "time"

// Window is an inclusive days-remaining range. A nil bound is open.
type Window struct {
	MinDays *int
	MaxDays *int
}

// Dates converts the window into an inclusive expiry date range relative to today
func (w Window) Dates(today time.Time) (from, to *time.Time) {
	base := utcDate(today)
	if w.MinDays != nil {
		d := base.AddDate(0, 0, *w.MinDays)
		from = &d
	}
	if w.MaxDays != nil {
		d := base.AddDate(0, 0, *w.MaxDays)
		to = &d
	}
	return from, to
}

// Window returns the days-remaining range whose lots classify as state and label.
// Either argument may be empty. ok is false when no lot can match.
func (c *Classifier) Window(state State, label string) (w Window, ok bool) {
	switch {
	case state == "" && label == "":
		return Window{}, true
	case label == string(StateExpired) && (state == "" || state == StateExpired),
		state == StateExpired && label == "":
		return Window{MaxDays: intPtr(-1)}, true
	case label == string(StateActive) && (state == "" || state == StateActive),
		state == StateActive && label == "":
		return Window{MinDays: intPtr(c.maxThreshold() + 1)}, true
	case state == StateExpired || state == StateActive:
		return Window{}, false
	}

	// discounted, optionally narrowed to one rule
	if len(c.rules) == 0 {
		return Window{}, false
	}
	if label == "" {
		return Window{MinDays: intPtr(0), MaxDays: intPtr(c.maxThreshold())}, true
	}

	reach := -1
	for _, r := range c.rules {
		if r.Name == label {
			if r.DaysThreshold <= reach {
				return Window{}, false
			}
			return Window{MinDays: intPtr(reach + 1), MaxDays: intPtr(r.DaysThreshold)}, true
		}
		if r.DaysThreshold > reach {
			reach = r.DaysThreshold
		}
	}
	return Window{}, false
}

// maxThreshold is the largest days-remaining value any rule covers, or -1
func (c *Classifier) maxThreshold() int {
	max := -1
	for _, r := range c.rules {
		if r.DaysThreshold > max {
			max = r.DaysThreshold
		}
	}
	return max
}

func intPtr(v int) *int {
	return &v
}
