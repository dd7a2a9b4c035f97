package store

import (
	"context"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/golang/snappy"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2/bson"
)

var modelsBucket = []byte("models")

// BoltCache keeps batches in a bolt file, one key per model name. Values are
// snappy-compressed BSON documents.
type BoltCache struct {
	db *bolt.DB
}

// OpenBolt opens or creates the cache file at path.
func OpenBolt(path string) (*BoltCache, error) {
	db, err := bolt.Open(path, 0664, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(modelsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create bucket")
	}
	return &BoltCache{db: db}, nil
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}

func (c *BoltCache) Path() string {
	return c.db.Path()
}

// Save stores b under name, replacing any previous model of that name.
func (c *BoltCache) Save(name string, b *model.Batch) error {
	raw, err := bson.Marshal(encodeBatch(name, b))
	if err != nil {
		return errors.Wrapf(err, "encoding %s", name)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(modelsBucket).Put([]byte(name), snappy.Encode(nil, raw))
	})
}

// Load returns the batch stored under name.
func (c *BoltCache) Load(name string) (*model.Batch, error) {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(modelsBucket).Get([]byte(name))
		if v == nil {
			return errors.Wrapf(ErrNotFound, "%q in %s", name, c.db.Path())
		}
		var err error
		// bolt values are only valid inside the transaction
		raw, err = snappy.Decode(nil, v)
		return err
	})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, err
		}
		return nil, errors.Wrapf(ErrBadDocument, "%s: %v", name, err)
	}
	var doc batchDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(ErrBadDocument, "%s: %v", name, err)
	}
	return decodeBatch(c.sourceName(name), doc)
}

// Delete removes name. Deleting a missing name is not an error.
func (c *BoltCache) Delete(name string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(modelsBucket).Delete([]byte(name))
	})
}

// Names lists the stored models in key order.
func (c *BoltCache) Names() ([]string, error) {
	var names []string
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(modelsBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	sort.Strings(names)
	return names, err
}

func (c *BoltCache) sourceName(name string) string {
	return "cache:" + name
}

// Source returns a model.Source loading name from the cache.
func (c *BoltCache) Source(name string) model.Source {
	return boltSource{cache: c, name: name}
}

type boltSource struct {
	cache *BoltCache
	name  string
}

func (s boltSource) Name() string { return s.cache.sourceName(s.name) }

func (s boltSource) Load(ctx context.Context) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := s.cache.Load(s.name)
	if err != nil {
		return nil, err
	}
	opcua.ContextLogger(ctx).Debugf("Read %d definitions from %s", len(b.Definitions), s.cache.Path())
	return b, nil
}
