// Package registration runs member registrations and waitinglist changes
// against stored activities. Every operation reloads the activity, mutates it
// in memory and saves it with the version check, retrying on conflicts.
package registration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/activitystore"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
)

var (
	ErrActivityNotFound = errors.New("activity not found")
	ErrResourceNotFound = errors.New("resource not found")
	// ErrNotAllowed means the member's state on the resource does not permit
	// the requested change.
	ErrNotAllowed = errors.New("registration not allowed")
)

const DefaultRetries = 3

type Service struct {
	Activities activitystore.Store
	// Retries is how often a conflicting save is reloaded and retried.
	Retries int
	Now     func() time.Time
	Log     zerolog.Logger
}

func New(store activitystore.Store, retries int, log zerolog.Logger) *Service {
	if retries < 0 {
		retries = DefaultRetries
	}
	return &Service{Activities: store, Retries: retries, Now: time.Now, Log: log}
}

// Result is the state of the member on the resource after a successful change.
type Result struct {
	URL      string                     `json:"url"`
	Resource string                     `json:"resource"`
	MemberID string                     `json:"memberId"`
	State    activity.RegistrationState `json:"state"`
	Version  int                        `json:"version"`
}

// AddVisitorTo registers memberID when registration is possible, or when the
// member holds a waitinglist entry with a valid subscription window.
func (s *Service) AddVisitorTo(ctx context.Context, memberID, url, resourceName string) (Result, error) {
	return s.update(ctx, "register", memberID, url, resourceName, func(r *activity.Resource, now time.Time) error {
		switch r.RegistrationStateFor(memberID) {
		case activity.Registered:
			return nil
		case activity.RegistrationPossible:
		case activity.OnWaitinglist:
			if !r.WaitinglistEntryFor(memberID).CanSubscribe(now) {
				return ErrNotAllowed
			}
			if r.IsFull() {
				return ErrNotAllowed
			}
		default:
			return ErrNotAllowed
		}
		r.AddMemberID(memberID, now)
		return nil
	})
}

func (s *Service) RemoveVisitorFrom(ctx context.Context, memberID, url, resourceName string) (Result, error) {
	return s.update(ctx, "deregister", memberID, url, resourceName, func(r *activity.Resource, _ time.Time) error {
		r.RemoveMemberID(memberID)
		return nil
	})
}

// AddToWaitinglist queues memberID on a resource that offers a waitinglist.
func (s *Service) AddToWaitinglist(ctx context.Context, memberID, url, resourceName string) (Result, error) {
	return s.update(ctx, "waitinglist add", memberID, url, resourceName, func(r *activity.Resource, now time.Time) error {
		if !r.HasWaitinglist() {
			return ErrNotAllowed
		}
		r.AddToWaitinglist(memberID, now)
		return nil
	})
}

func (s *Service) RemoveFromWaitinglist(ctx context.Context, memberID, url, resourceName string) (Result, error) {
	return s.update(ctx, "waitinglist remove", memberID, url, resourceName, func(r *activity.Resource, _ time.Time) error {
		r.RemoveFromWaitinglist(memberID)
		return nil
	})
}

// SetRegistrationValidity opens (or with an empty hours string, closes) the
// member's window to turn the waitinglist entry into a registration.
func (s *Service) SetRegistrationValidity(ctx context.Context, memberID, url, resourceName, hours string) (Result, error) {
	return s.update(ctx, "promote", memberID, url, resourceName, func(r *activity.Resource, now time.Time) error {
		e := r.WaitinglistEntryFor(memberID)
		if e == nil {
			return ErrNotAllowed
		}
		e.SetRegistrationValidityFor(hours, now)
		return nil
	})
}

// AddonResult is a member's stored addon answers.
type AddonResult struct {
	URL      string         `json:"url"`
	MemberID string         `json:"memberId"`
	Addon    activity.Addon `json:"addon"`
	Version  int            `json:"version"`
}

// FillAddon replaces the addon answers of memberID, who must be registered
// for one of the activity's resources.
func (s *Service) FillAddon(ctx context.Context, memberID, url string, addon activity.Addon) (AddonResult, error) {
	log := s.Log.With().Str("op", "addon").Str("url", url).Str("member", memberID).Logger()
	a, err := s.save(ctx, log, url, func(a *activity.Activity, _ time.Time) error {
		if !slices.Contains(a.AllRegisteredMembers(), memberID) {
			return ErrNotAllowed
		}
		a.FillAddonFromUI(memberID, addon)
		return nil
	})
	if err != nil {
		return AddonResult{}, err
	}
	stored, _ := a.AddonForMember(memberID)
	return AddonResult{URL: a.URL(), MemberID: memberID, Addon: stored, Version: a.Version()}, nil
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) update(ctx context.Context, op, memberID, url, resourceName string, mutate func(*activity.Resource, time.Time) error) (Result, error) {
	log := s.Log.With().Str("op", op).Str("url", url).Str("resource", resourceName).Str("member", memberID).Logger()
	var state activity.RegistrationState
	a, err := s.save(ctx, log, url, func(a *activity.Activity, now time.Time) error {
		r := a.ResourceNamed(resourceName)
		if r == nil {
			return ErrResourceNotFound
		}
		if err := mutate(r, now); err != nil {
			return err
		}
		state = r.RegistrationStateFor(memberID)
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{URL: a.URL(), Resource: resourceName, MemberID: memberID, State: state, Version: a.Version()}, nil
}

// save loads the activity, applies mutate and saves it with the version
// check, starting over on conflicting versions.
func (s *Service) save(ctx context.Context, log zerolog.Logger, url string, mutate func(*activity.Activity, time.Time) error) (*activity.Activity, error) {
	for attempt := 0; ; attempt++ {
		a, err := s.Activities.GetActivity(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("load activity %s: %w", url, err)
		}
		if a == nil {
			return nil, ErrActivityNotFound
		}
		if err := mutate(a, s.now()); err != nil {
			return nil, err
		}
		err = s.Activities.SaveActivity(ctx, a)
		if err == nil {
			log.Debug().Int("version", a.Version()).Msg("saved")
			return a, nil
		}
		if !errors.Is(err, persistence.ErrConflictingVersions) {
			return nil, err
		}
		if attempt >= s.Retries {
			log.Warn().Int("attempts", attempt+1).Msg("giving up on conflicting versions")
			return nil, err
		}
		log.Debug().Int("attempt", attempt+1).Msg("conflicting versions, reloading")
	}
}
