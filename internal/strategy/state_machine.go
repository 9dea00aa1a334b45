package strategy

import "sync"

type StateMachine struct {
	mu       sync.Mutex
	Position Position
}

func NewStateMachine() *StateMachine {
	return &StateMachine{Position: PositionFlat}
}

// Apply moves the machine and reports whether the event was valid for the
// position it was in. Invalid events leave the position unchanged.
func (s *StateMachine) Apply(event Event) (Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, ok := nextPosition(s.Position, event)
	s.Position = next
	return next, ok
}

func (s *StateMachine) Current() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Position
}

func nextPosition(current Position, event Event) (Position, bool) {
	if event == EventHold {
		return current, true
	}
	switch current {
	case PositionFlat:
		if event == EventOpenLong {
			return PositionLong, true
		}
		if event == EventOpenShort {
			return PositionShort, true
		}
	case PositionLong, PositionShort:
		if event == EventClose || event == EventStopLoss {
			return PositionFlat, true
		}
	}
	return current, false
}
