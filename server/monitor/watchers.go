package monitor

import "github.com/cyclopcam/linecount/pkg/gen"

// SYNC-WATCHER-CHANNEL-SIZE
const WatcherChannelSize = 100

// Register to receive the result of every frame of the session
func (s *Session) AddWatcher() chan *FrameEvent {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	ch := make(chan *FrameEvent, WatcherChannelSize)
	s.watchers = append(s.watchers, ch)
	return ch
}

// Unregister from frame results
func (s *Session) RemoveWatcher(ch chan *FrameEvent) {
	s.watchersLock.Lock()
	defer s.watchersLock.Unlock()
	before := len(s.watchers)
	s.watchers = gen.DeleteFirst(s.watchers, ch)
	if len(s.watchers) == before {
		s.Log.Warnf("Session.RemoveWatcher failed to find channel for session %v", s.ID)
	}
}

func (s *Session) sendToWatchers(ev *FrameEvent) {
	s.watchersLock.RLock()
	// Drop frames for a watcher that falls behind, instead of stalling the frame loop
	for _, ch := range s.watchers {
		// SYNC-WATCHER-CHANNEL-SIZE
		if len(ch) >= cap(ch)*9/10 {
			s.Log.Warnf("Session %v watcher is falling behind. Dropping frame %v", s.ID, ev.Frame)
		} else {
			ch <- ev
		}
	}
	s.watchersLock.RUnlock()
}
