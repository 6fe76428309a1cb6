// Package activitystore loads and saves activities through the document
// store. Saves are always versioned.
package activitystore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/softwerkskammer/Agora-sub000/internal/activity"
	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
)

const collection = "activitystore"

type Store struct {
	Docs persistence.Store
}

// GetActivity looks an activity up by url. A missing activity is nil, nil.
func (s Store) GetActivity(ctx context.Context, url string) (*activity.Activity, error) {
	rec, found, err := s.Docs.GetByField(ctx, collection, persistence.Where("url", url))
	if err != nil || !found {
		return nil, err
	}
	return decode(rec)
}

func (s Store) GetActivityForID(ctx context.Context, id string) (*activity.Activity, error) {
	rec, found, err := s.Docs.GetByID(ctx, collection, id)
	if err != nil || !found {
		return nil, err
	}
	return decode(rec)
}

// AllActivities returns every activity ordered by start.
func (s Store) AllActivities(ctx context.Context) ([]*activity.Activity, error) {
	return s.list(ctx, nil, persistence.Sort{Field: "startUnix"})
}

// UpcomingActivities returns activities not yet ended at now, soonest first.
func (s Store) UpcomingActivities(ctx context.Context, now time.Time) ([]*activity.Activity, error) {
	q := persistence.Query{{Field: "endUnix", Op: persistence.Gte, Value: now.Unix()}}
	return s.list(ctx, q, persistence.Sort{Field: "startUnix"})
}

// PastActivities returns ended activities, most recent first.
func (s Store) PastActivities(ctx context.Context, now time.Time) ([]*activity.Activity, error) {
	q := persistence.Query{{Field: "endUnix", Op: persistence.Lt, Value: now.Unix()}}
	return s.list(ctx, q, persistence.Sort{Field: "startUnix", Desc: true})
}

func (s Store) UpcomingActivitiesForGroupIDs(ctx context.Context, groupIDs []string, now time.Time) ([]*activity.Activity, error) {
	q := persistence.Query{
		{Field: "endUnix", Op: persistence.Gte, Value: now.Unix()},
		{Field: "assignedGroup", Op: persistence.In, Value: groupIDs},
	}
	return s.list(ctx, q, persistence.Sort{Field: "startUnix"})
}

// SaveActivity stores a with the version check. On
// persistence.ErrConflictingVersions the version of a is unchanged.
func (s Store) SaveActivity(ctx context.Context, a *activity.Activity) error {
	return s.Docs.SaveWithVersion(ctx, collection, a)
}

func (s Store) list(ctx context.Context, q persistence.Query, sort ...persistence.Sort) ([]*activity.Activity, error) {
	recs, err := s.Docs.ListByField(ctx, collection, q, sort...)
	if err != nil {
		return nil, err
	}
	res := make([]*activity.Activity, 0, len(recs))
	for _, rec := range recs {
		a, err := decode(rec)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, nil
}

func decode(rec persistence.Record) (*activity.Activity, error) {
	a := activity.NewEmpty()
	if err := json.Unmarshal(rec.Data, a); err != nil {
		return nil, fmt.Errorf("decode activity %s: %w", rec.ID, err)
	}
	// the column is authoritative
	a.SetVersion(rec.Version)
	return a, nil
}
