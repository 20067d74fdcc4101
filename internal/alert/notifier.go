package alert

import "codeberg.org/mutker/hostpulse/internal/logger"

// Notifier delivers alert messages to the user.
type Notifier interface {
	Alert(msg string)
}

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("alert")}
}

func (n *LogNotifier) Alert(msg string) {
	n.log.Warn().Msg("ALERT: " + msg)
}
