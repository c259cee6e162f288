package monitor

import (
	"fmt"
	"strings"

	"github.com/amirimatin/go-dbmon/pkg/server"
)

// Event is a named state transition derived from the difference between a
// node's previous and current status bitmask.
type Event int

const (
	EventNone Event = iota
	EventMasterDown
	EventMasterUp
	EventSlaveDown
	EventSlaveUp
	EventServerDown
	EventServerUp
	EventSyncedDown
	EventSyncedUp
	EventNDBDown
	EventNDBUp
	EventLostMaster
	EventLostSlave
	EventLostSynced
	EventLostNDB
	EventNewMaster
	EventNewSlave
	EventNewSynced
	EventNewNDB
)

var eventNames = map[Event]string{
	EventNone:       "undefined",
	EventMasterDown: "master_down",
	EventMasterUp:   "master_up",
	EventSlaveDown:  "slave_down",
	EventSlaveUp:    "slave_up",
	EventServerDown: "server_down",
	EventServerUp:   "server_up",
	EventSyncedDown: "synced_down",
	EventSyncedUp:   "synced_up",
	EventNDBDown:    "ndb_down",
	EventNDBUp:      "ndb_up",
	EventLostMaster: "lost_master",
	EventLostSlave:  "lost_slave",
	EventLostSynced: "lost_synced",
	EventLostNDB:    "lost_ndb",
	EventNewMaster:  "new_master",
	EventNewSlave:   "new_slave",
	EventNewSynced:  "new_synced",
	EventNewNDB:     "new_ndb",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return "undefined"
}

// EventFromName resolves a case-insensitive event name.
func EventFromName(name string) (Event, error) {
	for ev, n := range eventNames {
		if ev != EventNone && strings.EqualFold(n, name) {
			return ev, nil
		}
	}
	return EventNone, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

// ParseEventList parses a list of event names separated by commas, pipes or
// spaces into an enabled-event set. An empty input is an error; an unknown
// name is an error.
func ParseEventList(s string) (map[Event]bool, error) {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|' || r == ' '
	})
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty event list", ErrUnknownEvent)
	}
	enabled := make(map[Event]bool, len(tokens))
	for _, tok := range tokens {
		ev, err := EventFromName(tok)
		if err != nil {
			return nil, err
		}
		enabled[ev] = true
	}
	return enabled, nil
}

// watchedMask is the flag subset the classifier examines; all other status
// bits are ignored.
const watchedMask = server.StatusRunning | server.RoleMask

// priority order for role-specific event selection: master > slave > synced > ndb.
var rolePriority = []struct {
	bit                  uint64
	up, down, lost, new_ Event
}{
	{server.StatusMaster, EventMasterUp, EventMasterDown, EventLostMaster, EventNewMaster},
	{server.StatusSlave, EventSlaveUp, EventSlaveDown, EventLostSlave, EventNewSlave},
	{server.StatusSynced, EventSyncedUp, EventSyncedDown, EventLostSynced, EventNewSynced},
	{server.StatusNDB, EventNDBUp, EventNDBDown, EventLostNDB, EventNewNDB},
}

// Classify maps a (previous, current) status pair to a monitor event. It is
// pure: same inputs, same output, no mutation.
func Classify(prev, cur uint64) Event {
	p := prev & watchedMask
	c := cur & watchedMask
	if p == c {
		return EventNone
	}
	switch {
	case p&server.StatusRunning == 0 && c&server.StatusRunning != 0:
		// Came up; pick the event from the current role.
		for _, r := range rolePriority {
			if c&r.bit != 0 {
				return r.up
			}
		}
		return EventServerUp
	case p&server.StatusRunning != 0 && c&server.StatusRunning == 0:
		// Went down; the role it had decides the event.
		for _, r := range rolePriority {
			if p&r.bit != 0 {
				return r.down
			}
		}
		return EventServerDown
	case p&server.StatusRunning != 0 && c&server.StatusRunning != 0:
		if p&server.RoleMask != 0 {
			// Role information was known and is now different.
			for _, r := range rolePriority {
				if p&r.bit != 0 {
					return r.lost
				}
			}
			return EventNone
		}
		// Role information has appeared.
		for _, r := range rolePriority {
			if c&r.bit != 0 {
				return r.new_
			}
		}
		return EventNone
	default:
		// Was not running, still not running.
		return EventNone
	}
}
