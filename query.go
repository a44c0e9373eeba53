package mvstore

import (
	"bytes"
	"fmt"
	"time"

	"github.com/elliotcourant/mvstore/z"
	"github.com/pkg/errors"
)

var (
	// infiniteRange is a variable representing a key range that is infinite, or includes all keys.
	infiniteRange = keyRange{infinite: true}
)

type (
	// keyRange represents the start (inclusive) and end (exclusive) of a group of keys.
	keyRange struct {
		left, right []byte
		infinite    bool
	}

	// Query is a read only predicate over a range of keys. The range is either Prefix, or Start (inclusive) to End
	// (exclusive). A nil End scans to the last key. Filter, if set, is called for every visible record and only
	// those for which it returns true become rows.
	Query struct {
		Prefix []byte
		Start  []byte
		End    []byte
		Filter func(key, value []byte) bool

		// Limit stops the scan once this many rows have been collected. Zero means no limit.
		Limit int
	}

	// Row is a single record returned by Execute.
	Row struct {
		Key   []byte
		Value []byte

		// Version is the commit order of the version the row was read from. Since committed versions never change,
		// Key and Version together identify the row's content.
		Version uint64
	}
)

func (r keyRange) String() string {
	return fmt.Sprintf("[left=%x, right=%x, infinite=%v]", r.left, r.right, r.infinite)
}

// beforeEnd returns true if key sorts before the exclusive right bound.
func (r keyRange) beforeEnd(key []byte) bool {
	if r.infinite || r.right == nil {
		return true
	}

	return bytes.Compare(key, r.right) < 0
}

// includes returns true if key is within the range.
func (r keyRange) includes(key []byte) bool {
	if r.infinite {
		return true
	}

	return bytes.Compare(key, r.left) >= 0 && r.beforeEnd(key)
}

func (q Query) bounds() (keyRange, error) {
	if len(q.Prefix) > 0 {
		if q.Start != nil || q.End != nil {
			return keyRange{}, errors.New("query cannot have both a prefix and a start or end")
		}

		return keyRange{
			left:  q.Prefix,
			right: z.PrefixEnd(q.Prefix),
		}, nil
	}

	if q.Start == nil && q.End == nil {
		return infiniteRange, nil
	}

	if q.End != nil && bytes.Compare(q.Start, q.End) > 0 {
		return keyRange{}, errors.Errorf("query start %x is after end %x", q.Start, q.End)
	}

	return keyRange{
		left:  q.Start,
		right: q.End,
	}, nil
}

// Execute runs the read only query in its own REPEATABLE READ transaction, so every row comes from the same
// snapshot, and reports how long that took. Keys whose visible version is a deletion are skipped.
func (s *Store) Execute(q Query) (time.Duration, []Row, error) {
	start := time.Now()

	bounds, err := q.bounds()
	if err != nil {
		return 0, nil, err
	}

	rows := make([]Row, 0)
	err = s.View(func(txn *Transaction) error {
		for _, key := range s.log.keys(bounds) {
			v, err := txn.get(key)
			switch errors.Cause(err) {
			case nil:
			case ErrNotFound, ErrKeyDeleted:
				continue
			default:
				return err
			}

			if q.Filter != nil && !q.Filter(v.key, v.value) {
				continue
			}

			rows = append(rows, Row{
				Key:     v.key,
				Value:   v.value,
				Version: v.commitOrder.Load(),
			})

			if q.Limit > 0 && len(rows) >= q.Limit {
				return nil
			}
		}

		return nil
	})
	if err != nil {
		return time.Since(start), nil, errors.Wrapf(err, "failed to execute query over %s", bounds)
	}

	return time.Since(start), rows, nil
}
