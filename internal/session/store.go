// Package session keeps the per-user queue and pipeline state.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wapuda/mergebot/internal/media"
)

var (
	ErrBusy           = errors.New("a merge is already running")
	ErrAwaitingUpload = errors.New("merged file is waiting for an upload choice")
	ErrCancelling     = errors.New("previous run is still being cancelled")
	ErrExpired        = errors.New("merged file expired before an upload was chosen")
	ErrNoSession      = errors.New("nothing queued")
	ErrQueueFull      = errors.New("queue is full")
	ErrStaleRun       = errors.New("run no longer owns the session")
	ErrRejected       = errors.New("file type not accepted in this merge mode")
)

// NotCollecting is the error for adding to or merging a session in state st.
func NotCollecting(st State) error {
	switch st {
	case AwaitingUploadChoice:
		return ErrAwaitingUpload
	case Cancelled:
		return ErrCancelling
	}
	return ErrBusy
}

// Prompt is the interactive sub-state while waiting for the upload choice.
type Prompt int

const (
	PromptNone Prompt = iota
	PromptFilename
	PromptThumbnail
)

// Artifact describes the merged output.
type Artifact struct {
	Path     string
	Size     int64
	Duration float64
	Width    int
	Height   int
	Strategy media.Strategy
}

// Session is a snapshot of one user's pipeline.
type Session struct {
	UserID     int64
	ChatID     int64
	State      State
	Mode       MergeMode
	Items      []QueueItem
	LocalPaths []string
	Artifact   *Artifact
	RunID      string
	Dir        string
	Prompt     Prompt
	OutputName string
	Thumbnail  string
	Updated    time.Time

	cancel context.CancelFunc
}

func (s *Session) clone() Session {
	c := *s
	c.Items = append([]QueueItem(nil), s.Items...)
	c.LocalPaths = append([]string(nil), s.LocalPaths...)
	if s.Artifact != nil {
		a := *s.Artifact
		c.Artifact = &a
	}
	c.cancel = nil
	return c
}

// Store holds every active session. A missing entry is the Idle state.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	maxQueue int
	now      func() time.Time
}

func NewStore(maxQueue int) *Store {
	if maxQueue < 2 {
		maxQueue = 2
	}
	return &Store{sessions: make(map[int64]*Session), maxQueue: maxQueue, now: time.Now}
}

// Get returns a copy of the user's session; ok is false when Idle.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{UserID: userID, State: Idle}, false
	}
	return sess.clone(), true
}

// Enqueue appends item to the user's queue, creating the session if needed.
func (s *Store) Enqueue(userID, chatID int64, mode MergeMode, item QueueItem) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if ok && sess.State != Collecting {
		return sess.clone(), NotCollecting(sess.State)
	}
	if !ok {
		sess = &Session{UserID: userID, ChatID: chatID, State: Collecting, Mode: mode}
	}
	if len(sess.Items) >= s.maxQueue {
		return sess.clone(), fmt.Errorf("%w: max %d items", ErrQueueFull, s.maxQueue)
	}
	if !sess.Mode.Accepts(len(sess.Items), item.Name()) {
		return sess.clone(), fmt.Errorf("%w: %s", ErrRejected, item.Name())
	}
	sess.Items = append(sess.Items, item)
	sess.Updated = s.now()
	s.sessions[userID] = sess
	return sess.clone(), nil
}

// BeginMerge moves a collecting session into Downloading and binds it to a
// run. cancel is called by Cancel.
func (s *Store) BeginMerge(userID int64, runID, dir string, cancel context.CancelFunc) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{UserID: userID}, ErrNoSession
	}
	if sess.State != Collecting {
		return sess.clone(), NotCollecting(sess.State)
	}
	if len(sess.Items) < 2 {
		return sess.clone(), media.ErrInsufficientInputs
	}
	sess.State = Downloading
	sess.RunID = runID
	sess.Dir = dir
	sess.cancel = cancel
	sess.Updated = s.now()
	return sess.clone(), nil
}

// run returns the session owned by runID. Caller holds mu.
func (s *Store) run(userID int64, runID string) (*Session, error) {
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, ErrNoSession
	}
	if sess.RunID != runID {
		return nil, ErrStaleRun
	}
	return sess, nil
}

// Advance moves the run's session to state to.
func (s *Store) Advance(userID int64, runID string, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.run(userID, runID)
	if err != nil {
		return err
	}
	if !CanTransition(sess.State, to) {
		return &TransitionError{From: sess.State, To: to}
	}
	sess.State = to
	sess.Updated = s.now()
	return nil
}

func (s *Store) SetLocalPaths(userID int64, runID string, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.run(userID, runID)
	if err != nil {
		return err
	}
	sess.LocalPaths = append([]string(nil), paths...)
	return nil
}

// SetArtifact records the merge result and moves Merging to
// AwaitingUploadChoice. The run's cancel func is dropped.
func (s *Store) SetArtifact(userID int64, runID string, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.run(userID, runID)
	if err != nil {
		return err
	}
	if !CanTransition(sess.State, AwaitingUploadChoice) {
		return &TransitionError{From: sess.State, To: AwaitingUploadChoice}
	}
	sess.Artifact = &a
	sess.State = AwaitingUploadChoice
	sess.cancel = nil
	sess.Updated = s.now()
	return nil
}

// BeginUpload moves AwaitingUploadChoice to Uploading and clears any prompt.
func (s *Store) BeginUpload(userID int64, cancel context.CancelFunc) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{UserID: userID}, ErrNoSession
	}
	if sess.State != AwaitingUploadChoice {
		return sess.clone(), &TransitionError{From: sess.State, To: Uploading}
	}
	sess.State = Uploading
	sess.Prompt = PromptNone
	sess.cancel = cancel
	sess.Updated = s.now()
	return sess.clone(), nil
}

// Cancel aborts whatever the user's session is doing. A session with a live
// run goes to Cancelled and is released by the run itself; otherwise it is
// dropped immediately. The returned snapshot lists the files to clean up.
func (s *Store) Cancel(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{UserID: userID, State: Idle}, false
	}
	snap := sess.clone()
	sess.Prompt = PromptNone
	switch sess.State {
	case Downloading, Merging, Uploading:
		if sess.cancel != nil {
			sess.cancel()
		}
		sess.State = Cancelled
		sess.Updated = s.now()
	case Cancelled:
	default:
		delete(s.sessions, userID)
	}
	return snap, true
}

// Release returns the session to Idle. It is a no-op when another run owns
// the session by now.
func (s *Store) Release(userID int64, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok && sess.RunID == runID {
		if sess.cancel != nil {
			sess.cancel()
		}
		delete(s.sessions, userID)
	}
}

// SetPrompt enters or leaves a rename/thumbnail prompt.
func (s *Store) SetPrompt(userID int64, p Prompt) error {
	return s.update(userID, func(sess *Session) error {
		if sess.State != AwaitingUploadChoice {
			return &TransitionError{From: sess.State, To: AwaitingUploadChoice}
		}
		sess.Prompt = p
		return nil
	})
}

func (s *Store) SetOutputName(userID int64, name string) error {
	return s.update(userID, func(sess *Session) error {
		if sess.State != AwaitingUploadChoice {
			return &TransitionError{From: sess.State, To: AwaitingUploadChoice}
		}
		sess.OutputName = name
		sess.Prompt = PromptNone
		return nil
	})
}

func (s *Store) SetThumbnail(userID int64, path string) error {
	return s.update(userID, func(sess *Session) error {
		if sess.State != AwaitingUploadChoice {
			return &TransitionError{From: sess.State, To: AwaitingUploadChoice}
		}
		sess.Thumbnail = path
		sess.Prompt = PromptNone
		return nil
	})
}

func (s *Store) update(userID int64, fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return ErrNoSession
	}
	if err := fn(sess); err != nil {
		return err
	}
	sess.Updated = s.now()
	return nil
}

// All returns a snapshot of every non-idle session.
func (s *Store) All() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.clone())
	}
	return out
}

// ExpireAwaiting drops sessions that have waited for an upload choice since
// before cutoff and returns them so their workspaces can be removed.
func (s *Store) ExpireAwaiting(cutoff time.Time) []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Session
	for uid, sess := range s.sessions {
		if sess.State == AwaitingUploadChoice && sess.Updated.Before(cutoff) {
			out = append(out, sess.clone())
			delete(s.sessions, uid)
		}
	}
	return out
}

// Len returns the number of non-idle sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
