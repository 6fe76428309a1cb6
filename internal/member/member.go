// Package member holds the member records activities refer to by id.
package member

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/softwerkskammer/Agora-sub000/internal/persistence"
)

const collection = "memberstore"

type Member struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	FirstName string `json:"firstname,omitempty"`
	LastName  string `json:"lastname,omitempty"`
	Email     string `json:"email,omitempty"`
}

func (m Member) DocumentID() string { return m.ID }

// DisplayName is "First Last", falling back to the nickname.
func (m Member) DisplayName() string {
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if name == "" {
		return m.Nickname
	}
	return name
}

// Lookup resolves members; a missing member is nil without error.
type Lookup interface {
	ByID(ctx context.Context, id string) (*Member, error)
	ByNickname(ctx context.Context, nickname string) (*Member, error)
}

// Store keeps members in the document store.
type Store struct {
	Docs persistence.Store
}

var _ Lookup = Store{}

// Save stores m, assigning an id when it has none.
func (s Store) Save(ctx context.Context, m *Member) error {
	m.Nickname = strings.TrimSpace(m.Nickname)
	if m.Nickname == "" {
		return fmt.Errorf("member nickname is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return s.Docs.Save(ctx, collection, *m)
}

func (s Store) ByID(ctx context.Context, id string) (*Member, error) {
	rec, found, err := s.Docs.GetByID(ctx, collection, id)
	if err != nil || !found {
		return nil, err
	}
	return decode(rec)
}

// ByNickname matches the nickname exactly.
func (s Store) ByNickname(ctx context.Context, nickname string) (*Member, error) {
	rec, found, err := s.Docs.GetByField(ctx, collection, persistence.Where("nickname", nickname))
	if err != nil || !found {
		return nil, err
	}
	return decode(rec)
}

// ByIDs returns the members found for ids, in the order of ids.
func (s Store) ByIDs(ctx context.Context, ids []string) ([]Member, error) {
	recs, err := s.Docs.ListByField(ctx, collection, persistence.Query{{Field: "id", Op: persistence.In, Value: ids}})
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Member, len(recs))
	for _, rec := range recs {
		m, err := decode(rec)
		if err != nil {
			return nil, err
		}
		byID[m.ID] = *m
	}
	res := make([]Member, 0, len(ids))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			res = append(res, m)
		}
	}
	return res, nil
}

func (s Store) All(ctx context.Context) ([]Member, error) {
	recs, err := s.Docs.ListByField(ctx, collection, nil, persistence.Sort{Field: "nickname"})
	if err != nil {
		return nil, err
	}
	res := make([]Member, 0, len(recs))
	for _, rec := range recs {
		m, err := decode(rec)
		if err != nil {
			return nil, err
		}
		res = append(res, *m)
	}
	return res, nil
}

func decode(rec persistence.Record) (*Member, error) {
	var m Member
	if err := json.Unmarshal(rec.Data, &m); err != nil {
		return nil, fmt.Errorf("decode member %s: %w", rec.ID, err)
	}
	return &m, nil
}
