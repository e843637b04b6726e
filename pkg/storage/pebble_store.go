// Package storage is the durable archive behind the in-memory core: matched
// orders and positions land in pebble so a restarted node can serve
// position lookups and the public match record survives. The live matching
// path never reads from here.
package storage

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/fairlend/fairlend/pkg/core"
	"github.com/fairlend/fairlend/pkg/core/position"
)

type Store struct {
	db *pebble.DB
}

func NewStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open archive at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// keys: o:<order-id>, p:<position-id>
func kOrder(id string) []byte    { return append([]byte("o:"), id...) }
func kPosition(id string) []byte { return append([]byte("p:"), id...) }

func (s *Store) SaveMatchedOrder(o core.Order) error {
	val, err := encodeGob(o)
	if err != nil {
		return fmt.Errorf("encode order %s: %w", o.ID, err)
	}
	if err := s.db.Set(kOrder(o.ID), val, pebble.Sync); err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (s *Store) GetMatchedOrder(id string) (core.Order, error) {
	val, closer, err := s.db.Get(kOrder(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return core.Order{}, fmt.Errorf("order %s: %w", id, core.ErrNotFound)
		}
		return core.Order{}, fmt.Errorf("get order %s: %w", id, err)
	}
	defer closer.Close()
	var out core.Order
	if err := decodeGob(val, &out); err != nil {
		return core.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return out, nil
}

func (s *Store) SavePosition(p position.Position) error {
	val, err := encodeGob(p)
	if err != nil {
		return fmt.Errorf("encode position %s: %w", p.ID, err)
	}
	if err := s.db.Set(kPosition(p.ID), val, pebble.Sync); err != nil {
		return fmt.Errorf("save position %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetPosition(id string) (position.Position, error) {
	val, closer, err := s.db.Get(kPosition(id))
	if err != nil {
		if err == pebble.ErrNotFound {
			return position.Position{}, fmt.Errorf("position %s: %w", id, core.ErrNotFound)
		}
		return position.Position{}, fmt.Errorf("get position %s: %w", id, err)
	}
	defer closer.Close()
	var out position.Position
	if err := decodeGob(val, &out); err != nil {
		return position.Position{}, fmt.Errorf("decode position %s: %w", id, err)
	}
	return out, nil
}

// ListPositions scans the position keyspace. Used at boot to rehydrate the
// engine's in-memory position table.
func (s *Store) ListPositions() ([]position.Position, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("p:"),
		UpperBound: []byte("p;"), // ';' is ':'+1
	})
	if err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	defer iter.Close()

	var out []position.Position
	for iter.First(); iter.Valid(); iter.Next() {
		var p position.Position
		if err := decodeGob(iter.Value(), &p); err != nil {
			return nil, fmt.Errorf("decode position %s: %w", iter.Key(), err)
		}
		out = append(out, p)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}
