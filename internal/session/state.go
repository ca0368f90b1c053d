package session

import "fmt"

type State int

const (
	Idle State = iota
	Collecting
	Downloading
	Merging
	AwaitingUploadChoice
	Uploading
	Cancelled
)

var stateNames = [...]string{
	Idle:                 "idle",
	Collecting:           "collecting",
	Downloading:          "downloading",
	Merging:              "merging",
	AwaitingUploadChoice: "awaiting_upload_choice",
	Uploading:            "uploading",
	Cancelled:            "cancelled",
}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Busy reports whether a pipeline run owns the session.
func (s State) Busy() bool {
	switch s {
	case Downloading, Merging, Uploading, Cancelled:
		return true
	}
	return false
}

var transitions = map[State][]State{
	Idle:                 {Collecting},
	Collecting:           {Collecting, Downloading, Cancelled},
	Downloading:          {Merging, Idle, Cancelled},
	Merging:              {AwaitingUploadChoice, Idle, Cancelled},
	AwaitingUploadChoice: {Uploading, Cancelled},
	Uploading:            {Idle, Cancelled},
	Cancelled:            {Idle},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned for a move the state machine does not allow.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("session: cannot go from %s to %s", e.From, e.To)
}
