// internal/session/notify.go
package session

import (
	"github.com/sirupsen/logrus"

	"github.com/kacperw/chesshub/internal/presence"
)

// Notifier delivers an event to a player by username. Delivery is best
// effort: a dropped notification never rolls back the state change that
// produced it; clients recover via the ongoing-game pull.
type Notifier interface {
	Notify(username, event string, payload any)
}

// PresenceNotifier routes events through the live connection directory.
type PresenceNotifier struct {
	directory *presence.Directory
	logger    *logrus.Logger
}

func NewPresenceNotifier(directory *presence.Directory, logger *logrus.Logger) *PresenceNotifier {
	return &PresenceNotifier{directory: directory, logger: logger}
}

func (n *PresenceNotifier) Notify(username, event string, payload any) {
	conn, ok := n.directory.Lookup(username)
	if !ok {
		n.logger.WithFields(logrus.Fields{"user": username, "event": event}).Debug("notify: no live connection")
		return
	}
	if err := conn.Send(event, payload); err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{"user": username, "event": event}).Warn("notify: send failed")
	}
}
