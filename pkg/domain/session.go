package domain

import (
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrTurnOutOfOrder = errors.New("turn is older than the last transcript entry")
	// ErrSessionChanged marks work started before the session was cleared or
	// given a new attachment.
	ErrSessionChanged = errors.New("session changed while the request was in flight")
)

type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Session is the host-owned state of one interactive research session.
type Session struct {
	ID         string
	Attachment *Attachment
	Transcript []Turn
	UpdatedAt  time.Time
	// Generation changes whenever the attachment is replaced or the session
	// is cleared. Results computed under an older generation are stale.
	Generation uint64
}

func NewSession(id string) *Session {
	return &Session{ID: id, UpdatedAt: time.Now()}
}

// Append adds turns to the transcript. Turns must not predate the last entry.
func (s *Session) Append(turns ...Turn) error {
	for _, t := range turns {
		if n := len(s.Transcript); n > 0 && t.At.Before(s.Transcript[n-1].At) {
			return ErrTurnOutOfOrder
		}
		s.Transcript = append(s.Transcript, t)
	}
	s.UpdatedAt = time.Now()
	return nil
}

// Attach replaces the current attachment. The transcript is kept.
func (s *Session) Attach(a *Attachment) {
	s.Attachment = a
	s.Generation++
	s.UpdatedAt = time.Now()
}

func (s *Session) Clear() {
	s.Attachment = nil
	s.Transcript = nil
	s.Generation++
	s.UpdatedAt = time.Now()
}

// Record appends a question and its answer stamped at the time of recording,
// never earlier than the last transcript entry.
func (s *Session) Record(question, answer string, at time.Time) {
	if n := len(s.Transcript); n > 0 && at.Before(s.Transcript[n-1].At) {
		at = s.Transcript[n-1].At
	}
	s.Transcript = append(s.Transcript,
		Turn{Role: RoleUser, Text: question, At: at},
		Turn{Role: RoleAssistant, Text: answer, At: at},
	)
	s.UpdatedAt = time.Now()
}

// Clone returns a copy whose transcript can be appended to independently.
func (s *Session) Clone() *Session {
	c := *s
	c.Transcript = append([]Turn(nil), s.Transcript...)
	return &c
}

// TrimTranscript keeps only the most recent maxTurns turns, in their original
// order. Older turns are dropped. The result never aliases the input.
func TrimTranscript(transcript []Turn, maxTurns int) []Turn {
	if maxTurns <= 0 || len(transcript) == 0 {
		return nil
	}
	start := 0
	if len(transcript) > maxTurns {
		start = len(transcript) - maxTurns
	}
	return append([]Turn(nil), transcript[start:]...)
}
