package socrates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/events"
)

// DefaultStream is the event stream of the conference.
const DefaultStream = "socrates"

// Service runs commands against the persisted log. Each command reads the
// stream, decides and appends at the read position; when another writer got
// there first the command is decided again.
type Service struct {
	Writer  events.Writer
	Reader  events.Reader
	Stream  string
	Window  time.Duration
	Limits  map[string]int
	Retries int
	Now     func() time.Time
	Log     zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) stream() string {
	if s.Stream == "" {
		return DefaultStream
	}
	return s.Stream
}

// Load folds the stored log into a processor.
func (s *Service) Load(ctx context.Context) (*Processor, int64, error) {
	stored, err := s.Reader.Stream(ctx, s.stream())
	if err != nil {
		return nil, 0, err
	}
	evts := make([]Event, 0, len(stored))
	var last int64
	for _, se := range stored {
		var e Event
		if err := json.Unmarshal(se.Payload, &e); err != nil {
			return nil, 0, fmt.Errorf("decode event %d: %w", se.ID, err)
		}
		evts = append(evts, e)
		last = se.ID
	}
	return NewProcessor(evts, s.Window, s.Limits), last, nil
}

func (s *Service) IssueReservation(ctx context.Context, roomType, sessionID, memberID string) (Event, error) {
	return s.run(ctx, func(p *Processor, now time.Time) Event {
		return p.IssueReservation(roomType, sessionID, memberID, now)
	})
}

func (s *Service) RegisterParticipant(ctx context.Context, roomType, sessionID, memberID string) (Event, error) {
	return s.run(ctx, func(p *Processor, now time.Time) Event {
		return p.RegisterParticipant(roomType, sessionID, memberID, now)
	})
}

// Views returns the read rows of roomType at the current time.
func (s *Service) Views(ctx context.Context, roomType string) ([]View, error) {
	p, _, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	return p.Views(roomType, s.now()), nil
}

func (s *Service) run(ctx context.Context, decide func(*Processor, time.Time) Event) (Event, error) {
	for attempt := 0; ; attempt++ {
		p, last, err := s.Load(ctx)
		if err != nil {
			return Event{}, err
		}
		now := s.now()
		e := decide(p, now)
		_, err = s.Writer.Append(ctx, nil, s.stream(), last, string(e.Type), e)
		if err == nil {
			s.Log.Info().Str("type", string(e.Type)).Str("roomType", e.RoomType).Str("session", e.SessionID).Str("reason", e.Reason).Msg("socrates event")
			return e, nil
		}
		if !errors.Is(err, events.ErrStreamAdvanced) || attempt >= s.Retries {
			return Event{}, err
		}
		s.Log.Debug().Int("attempt", attempt+1).Msg("stream advanced, deciding again")
	}
}
