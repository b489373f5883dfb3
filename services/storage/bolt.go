package storage

import (
	"bytes"

	bolt "go.etcd.io/bbolt"
)

// Bolt implementation of Store
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

func NewBolt(db *bolt.DB, bucket string) *Bolt {
	return &Bolt{
		db:     db,
		bucket: []byte(bucket),
	}
}

func (b *Bolt) Put(key string, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(b.bucket)
		if err != nil {
			return err
		}
		err = bucket.Put([]byte(key), value)
		if err != nil {
			return err
		}
		return nil
	})
}
func (b *Bolt) Get(key string) (*KeyValue, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return ErrNoKeyExists
		}

		val := bucket.Get([]byte(key))
		if val == nil {
			return ErrNoKeyExists
		}
		value = make([]byte, len(val))
		copy(value, val)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &KeyValue{
		Key:   key,
		Value: value,
	}, nil
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(key))
	})
}

func (b *Bolt) Exists(key string) (bool, error) {
	var exists bool
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}

		val := bucket.Get([]byte(key))
		exists = val != nil
		return nil
	})
	return exists, err
}

func (b *Bolt) View(f func(tx ReadOnlyTx) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return f(&boltTx{tx: tx, bucket: b.bucket})
	})
}

func (b *Bolt) Update(f func(tx Tx) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return f(&boltTx{tx: tx, bucket: b.bucket})
	})
}

type boltTx struct {
	tx     *bolt.Tx
	bucket []byte
}

func (t *boltTx) Get(key string) (*KeyValue, error) {
	bucket := t.tx.Bucket(t.bucket)
	if bucket == nil {
		return nil, ErrNoKeyExists
	}
	val := bucket.Get([]byte(key))
	if val == nil {
		return nil, ErrNoKeyExists
	}
	value := make([]byte, len(val))
	copy(value, val)
	return &KeyValue{Key: key, Value: value}, nil
}

func (t *boltTx) Exists(key string) (bool, error) {
	bucket := t.tx.Bucket(t.bucket)
	if bucket == nil {
		return false, nil
	}
	return bucket.Get([]byte(key)) != nil, nil
}

func (t *boltTx) List(prefix string) (kvs []*KeyValue, err error) {
	bucket := t.tx.Bucket(t.bucket)
	if bucket == nil {
		return nil, nil
	}
	cursor := bucket.Cursor()
	p := []byte(prefix)
	for key, v := cursor.Seek(p); bytes.HasPrefix(key, p); key, v = cursor.Next() {
		value := make([]byte, len(v))
		copy(value, v)
		kvs = append(kvs, &KeyValue{Key: string(key), Value: value})
	}
	return kvs, nil
}

func (t *boltTx) Put(key string, value []byte) error {
	bucket, err := t.tx.CreateBucketIfNotExists(t.bucket)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(key), value)
}

func (t *boltTx) Delete(key string) error {
	bucket := t.tx.Bucket(t.bucket)
	if bucket == nil {
		return nil
	}
	return bucket.Delete([]byte(key))
}

func (b *Bolt) List(prefix string) (kvs []*KeyValue, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}

		cursor := bucket.Cursor()
		prefix := []byte(prefix)

		for key, v := cursor.Seek(prefix); bytes.HasPrefix(key, prefix); key, v = cursor.Next() {
			value := make([]byte, len(v))
			copy(value, v)

			kvs = append(kvs, &KeyValue{
				Key:   string(key),
				Value: value,
			})
		}
		return nil
	})
	return kvs, err
}
