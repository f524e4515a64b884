package watcher

import (
	"strconv"
	"time"
)

func (w *FSWatcher) handleError(s *session, err error) {
	if err == nil {
		return
	}
	if _, ok := err.(*rawError); !ok {
		err = rawf(variantNotify, "%v", err)
	}
	failure := translate(err)
	w.logger.Warn("watcher error", failure.Fields())
	w.bus.Publish(ErrorSignal(failure))
	w.scheduleRestart(s, err)
}

func restartDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<attempt)
}

// scheduleRestart runs on the session loop only. Once the attempts are spent
// the session ends.
func (w *FSWatcher) scheduleRestart(s *session, err error) {
	s.mu.Lock()
	if s.ended || s.restartTimer != nil {
		s.mu.Unlock()
		return
	}
	if s.restartAttempts >= maxRestartAttempts {
		s.mu.Unlock()
		w.finish(s, err)
		return
	}
	delay := restartDelay(w.restartBase, s.restartAttempts)
	s.restartAttempts++
	attempt := s.restartAttempts
	s.restartTimer = w.clock.AfterFunc(delay, func() {
		w.performRestart(s)
	})
	s.mu.Unlock()

	w.logger.Info("watcher restart scheduled", map[string]string{
		"attempt": strconv.Itoa(attempt),
		"delay":   delay.String(),
	})
}

func (w *FSWatcher) performRestart(s *session) {
	restartErr := w.restart(s)

	s.mu.Lock()
	s.restartTimer = nil
	if restartErr == nil {
		s.restartAttempts = 0
	}
	s.mu.Unlock()

	if restartErr == nil {
		w.registry.IncWatcherRestart()
		w.logger.Info("watcher restarted", map[string]string{"watch_dir": s.dir})
		return
	}

	w.logger.Warn("watcher restart failed", map[string]string{
		"error": restartErr.Error(),
	})
	select {
	case s.restarts <- restartErr:
	case <-s.done:
	}
}

func (w *FSWatcher) restart(s *session) error {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	replacement, err := w.openSource(s.dir)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		_ = replacement.Close()
		return nil
	}
	previous := s.source
	s.source = replacement
	s.mu.Unlock()

	w.forward(s, replacement)
	if previous != nil {
		_ = previous.Close()
	}
	return nil
}
