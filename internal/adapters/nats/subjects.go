package natsadapter

import (
	"fmt"
	"strconv"
	"strings"
)

// Subjects events are published on.
const (
	SubjectRoutesAdded   = "tripsim.routes.added"
	SubjectRoutesRemoved = "tripsim.routes.removed"
	SubjectNotices       = "tripsim.notices"
	SubjectAll           = "tripsim.>"
)

func SubjectRouteState(id int64) string     { return fmt.Sprintf("tripsim.route.%d.state", id) }
func SubjectRouteGeometry(id int64) string  { return fmt.Sprintf("tripsim.route.%d.geometry", id) }
func SubjectRouteCompleted(id int64) string { return fmt.Sprintf("tripsim.route.%d.completed", id) }

// ChannelSubject maps a client-facing channel name to a NATS subject:
//
//	route:<id>  every event for one route
//	routes      route additions and removals
//	notices     user notices
//	all         everything
func ChannelSubject(channel string) (string, error) {
	switch channel {
	case "routes":
		return "tripsim.routes.>", nil
	case "notices":
		return SubjectNotices, nil
	case "all":
		return SubjectAll, nil
	}

	if rest, ok := strings.CutPrefix(channel, "route:"); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			return "", fmt.Errorf("invalid route id in channel %q", channel)
		}
		return fmt.Sprintf("tripsim.route.%d.>", id), nil
	}
	return "", fmt.Errorf("unknown channel %q", channel)
}
