package index

import (
	"time"

	"go.uber.org/zap"
)

// Listener follows the progress of bulk operations.
type Listener interface {
	Begin(units int)
	Worked(units int)
	Done()
}

type NullListener struct{}

func (NullListener) Begin(int)  {}
func (NullListener) Worked(int) {}
func (NullListener) Done()      {}

// ProgressLoggingListener logs progress at most once per interval.
type ProgressLoggingListener struct {
	logger   *zap.Logger
	name     string
	interval time.Duration
	now      func() time.Time

	total   int
	worked  int
	started time.Time
	logged  time.Time
}

func NewProgressLoggingListener(logger *zap.Logger, name string, interval time.Duration) *ProgressLoggingListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressLoggingListener{logger: logger, name: name, interval: interval, now: time.Now}
}

func (l *ProgressLoggingListener) Begin(units int) {
	l.total = units
	l.worked = 0
	l.started = l.now()
	l.logged = l.started
	l.logger.Info("[Progress] started", zap.String("task", l.name), zap.Int("units", units))
}

func (l *ProgressLoggingListener) Worked(units int) {
	l.worked += units
	now := l.now()
	if now.Sub(l.logged) < l.interval {
		return
	}
	l.logged = now
	l.logger.Info("[Progress] working",
		zap.String("task", l.name),
		zap.Int("done", l.worked),
		zap.Int("total", l.total),
		zap.Float64("percent", l.Percent()))
}

func (l *ProgressLoggingListener) Done() {
	l.logger.Info("[Progress] finished",
		zap.String("task", l.name),
		zap.Int("done", l.worked),
		zap.Duration("elapsed", l.now().Sub(l.started)))
}

func (l *ProgressLoggingListener) Percent() float64 {
	if l.total <= 0 {
		return 100
	}
	return 100 * float64(l.worked) / float64(l.total)
}
