package smartcache

import (
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-memdb"
)

const (
	tableEntries = "entries"
	indexID      = "id"
	indexRecency = "recency"
	indexExpiry  = "expiry"
)

// uintIndex indexes a uint64 attribute big-endian so that LowerBound walks
// the index in numeric order.
type uintIndex struct {
	extract func(obj interface{}) (uint64, bool)
}

func (u *uintIndex) FromObject(obj interface{}) (bool, []byte, error) {
	v, ok := u.extract(obj)
	if !ok {
		return false, nil, fmt.Errorf("unexpected object type %T", obj)
	}
	return true, encodeUint(v), nil
}

func (u *uintIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	v, ok := args[0].(uint64)
	if !ok {
		return nil, fmt.Errorf("argument must be a uint64: %#v", args[0])
	}
	return encodeUint(v), nil
}

// keyIndex is the primary index. Unlike memdb.StringFieldIndex it accepts
// the empty key.
type keyIndex struct {
	extract func(obj interface{}) (string, bool)
}

func (k *keyIndex) FromObject(obj interface{}) (bool, []byte, error) {
	key, ok := k.extract(obj)
	if !ok {
		return false, nil, fmt.Errorf("unexpected object type %T", obj)
	}
	return true, encodeKey(key), nil
}

func (k *keyIndex) FromArgs(args ...interface{}) ([]byte, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("must provide only a single argument")
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("argument must be a string: %#v", args[0])
	}
	return encodeKey(key), nil
}

func encodeKey(key string) []byte {
	return append([]byte(key), 0)
}

func encodeUint(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// newSchema describes the single entries table: unique by key, unique by
// recency sequence (lowest = least recently used) and ordered by deadline.
func newSchema[V any]() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableEntries: {
				Name: tableEntries,
				Indexes: map[string]*memdb.IndexSchema{
					indexID: {
						Name:   indexID,
						Unique: true,
						Indexer: &keyIndex{extract: func(obj interface{}) (string, bool) {
							e, ok := obj.(*entry[V])
							if !ok {
								return "", false
							}
							return e.Key, true
						}},
					},
					indexRecency: {
						Name:   indexRecency,
						Unique: true,
						Indexer: &uintIndex{extract: func(obj interface{}) (uint64, bool) {
							e, ok := obj.(*entry[V])
							if !ok {
								return 0, false
							}
							return e.Seq, true
						}},
					},
					indexExpiry: {
						Name: indexExpiry,
						Indexer: &uintIndex{extract: func(obj interface{}) (uint64, bool) {
							e, ok := obj.(*entry[V])
							if !ok {
								return 0, false
							}
							return e.Deadline, true
						}},
					},
				},
			},
		},
	}
}
