package dashboard

import (
	"fmt"
	"time"

	"hookfeed/internal/domain/event"
	"hookfeed/internal/ports"
)

const TimestampLayout = "2 January 2006 at 3:04 PM MST"

// Describe renders one stored event as a feed line in loc.
func Describe(stored ports.StoredEvent, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	ev := stored.Event
	ts := ev.Timestamp.In(loc).Format(TimestampLayout)

	switch ev.Action {
	case event.ActionPush:
		return fmt.Sprintf("%s pushed to %s on %s", ev.Author, ev.ToBranch, ts)
	case event.ActionPullRequest:
		return fmt.Sprintf("%s submitted a pull request from %s to %s on %s", ev.Author, ev.FromBranch, ev.ToBranch, ts)
	case event.ActionMerge:
		return fmt.Sprintf("%s merged branch %s to %s on %s", ev.Author, ev.FromBranch, ev.ToBranch, ts)
	default:
		return fmt.Sprintf("%s performed %s on %s", ev.Author, ev.Action, ts)
	}
}
