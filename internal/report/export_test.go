package report

import "time"

func (s *Sink) SetClock(now func() time.Time) {
	s.now = now
}
