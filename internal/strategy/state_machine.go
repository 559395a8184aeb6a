package strategy

import "sync"

type RunStatus string

type Event string

const (
	StatusIdle     RunStatus = "IDLE"
	StatusStarting RunStatus = "STARTING"
	StatusRunning  RunStatus = "RUNNING"
	StatusStopping RunStatus = "STOPPING"
	StatusStopped  RunStatus = "STOPPED"
	StatusFaulted  RunStatus = "FAULTED"
)

const (
	EventStart   Event = "START"
	EventStarted Event = "STARTED"
	EventStop    Event = "STOP"
	EventStopped Event = "STOPPED"
	EventFault   Event = "FAULT"
)

type StateMachine struct {
	mu     sync.Mutex
	status RunStatus
}

func NewStateMachine() *StateMachine {
	return &StateMachine{status: StatusIdle}
}

func (s *StateMachine) Status() RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *StateMachine) Apply(event Event) RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = nextStatus(s.status, event)
	return s.status
}

// nextStatus is the closed transition table. Faulted only leaves via an
// explicit fresh start; unknown pairs keep the current status.
func nextStatus(current RunStatus, event Event) RunStatus {
	switch current {
	case StatusIdle, StatusStopped, StatusFaulted:
		if event == EventStart {
			return StatusStarting
		}
	case StatusStarting:
		switch event {
		case EventStarted:
			return StatusRunning
		case EventStop:
			return StatusStopping
		case EventFault:
			return StatusFaulted
		}
	case StatusRunning:
		switch event {
		case EventStop:
			return StatusStopping
		case EventFault:
			return StatusFaulted
		}
	case StatusStopping:
		switch event {
		case EventStopped:
			return StatusStopped
		case EventFault:
			return StatusFaulted
		}
	}
	return current
}
