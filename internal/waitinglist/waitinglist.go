// Package waitinglist keeps standalone waitinglist entries that point at an
// activity resource, and the orchestration around them.
package waitinglist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/member"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
)

const collection = "waitingliststore"

var ErrUnknownMember = errors.New("unknown member")

// Entry is a provisional claim on a resource of an activity.
type Entry struct {
	ID                     string     `json:"id"`
	RegistrantID           string     `json:"_registrantId"`
	ActivityName           string     `json:"_activityName"`
	ResourceName           string     `json:"_resourceName"`
	RegistrationDate       time.Time  `json:"_registrationDate"`
	RegistrationValidUntil *time.Time `json:"_registrationValidUntil,omitempty"`

	// Registrant is resolved on listing and never stored.
	Registrant string `json:"-"`
}

func (e Entry) DocumentID() string { return e.ID }

// SetRegistrationValidityFor opens a window of hours from now; blank hours
// close it.
func (e *Entry) SetRegistrationValidityFor(hours string, now time.Time) {
	e.RegistrationValidUntil = activity.ValidUntil(hours, now)
}

func (e Entry) CanSubscribe(now time.Time) bool {
	return activity.WithinWindow(e.RegistrationValidUntil, now)
}

type Store struct {
	Docs persistence.Store
}

func (s Store) Save(ctx context.Context, e Entry) error {
	return s.Docs.Save(ctx, collection, e)
}

// All returns every entry in store order.
func (s Store) All(ctx context.Context) ([]Entry, error) {
	recs, err := s.Docs.ListByField(ctx, collection, nil)
	if err != nil {
		return nil, err
	}
	res := make([]Entry, 0, len(recs))
	for _, rec := range recs {
		var e Entry
		if err := json.Unmarshal(rec.Data, &e); err != nil {
			return nil, fmt.Errorf("decode waitinglist entry %s: %w", rec.ID, err)
		}
		res = append(res, e)
	}
	return res, nil
}

// Find returns the entry of registrantID for the resource, or nil.
func (s Store) Find(ctx context.Context, registrantID, activityURL, resourceName string) (*Entry, error) {
	q := persistence.Where("_registrantId", registrantID).
		And("_activityName", activityURL).
		And("_resourceName", resourceName)
	rec, found, err := s.Docs.GetByField(ctx, collection, q)
	if err != nil || !found {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(rec.Data, &e); err != nil {
		return nil, fmt.Errorf("decode waitinglist entry %s: %w", rec.ID, err)
	}
	return &e, nil
}

type Service struct {
	Store   Store
	Members member.Lookup
	Now     func() time.Time
	Log     zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Waitinglist lists all entries with the registrant nickname attached.
// Entries of unknown members keep an empty nickname.
func (s *Service) Waitinglist(ctx context.Context) ([]Entry, error) {
	entries, err := s.Store.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		m, err := s.Members.ByID(ctx, entries[i].RegistrantID)
		if err != nil {
			return nil, fmt.Errorf("resolve registrant %s: %w", entries[i].RegistrantID, err)
		}
		if m != nil {
			entries[i].Registrant = m.Nickname
		}
	}
	return entries, nil
}

// SaveWaitinglistEntry queues the member with the given nickname for the
// resource. The entry is created at now.
func (s *Service) SaveWaitinglistEntry(ctx context.Context, nickname, activityURL, resourceName string) (Entry, error) {
	m, err := s.Members.ByNickname(ctx, nickname)
	if err != nil {
		return Entry{}, fmt.Errorf("resolve nickname %s: %w", nickname, err)
	}
	if m == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownMember, nickname)
	}
	e := Entry{
		ID:               uuid.NewString(),
		RegistrantID:     m.ID,
		ActivityName:     activityURL,
		ResourceName:     resourceName,
		RegistrationDate: s.now(),
	}
	if err := s.Store.Save(ctx, e); err != nil {
		return Entry{}, err
	}
	s.Log.Info().Str("member", m.ID).Str("activity", activityURL).Str("resource", resourceName).Msg("waitinglist entry saved")
	e.Registrant = m.Nickname
	return e, nil
}

// CanSubscribe is false when no entry exists.
func (s *Service) CanSubscribe(ctx context.Context, memberID, activityURL, resourceName string) (bool, error) {
	e, err := s.Store.Find(ctx, memberID, activityURL, resourceName)
	if err != nil || e == nil {
		return false, err
	}
	return e.CanSubscribe(s.now()), nil
}

// SetRegistrationValidity sets the entry's window. It returns nil when the
// member has no entry for the resource.
func (s *Service) SetRegistrationValidity(ctx context.Context, memberID, activityURL, resourceName, hours string) (*Entry, error) {
	e, err := s.Store.Find(ctx, memberID, activityURL, resourceName)
	if err != nil || e == nil {
		return nil, err
	}
	e.SetRegistrationValidityFor(hours, s.now())
	if err := s.Store.Save(ctx, *e); err != nil {
		return nil, err
	}
	return e, nil
}
