package store

import (
	"context"
	"time"

	"github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/pkg/errors"
	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

// MongoStore keeps one document per node in a collection, tagged with the
// model name and a save generation, and one header document per model in
// "<collection>_models" holding the namespace array and the generation its
// nodes carry. Node documents of any other generation are ignored by Load.
type MongoStore struct {
	session    *mgo.Session
	database   string
	collection string
}

// DialMongo connects to the MongoDB at url.
func DialMongo(url, database, collection string) (*MongoStore, error) {
	session, err := mgo.DialWithTimeout(url, 10*time.Second)
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", url)
	}
	s := &MongoStore{session: session, database: database, collection: collection}
	err = s.nodes(session).EnsureIndex(mgo.Index{Key: []string{"model", "generation", "seq"}, Unique: true})
	if err != nil {
		session.Close()
		return nil, errors.Wrap(err, "ensuring node index")
	}
	return s, nil
}

func (s *MongoStore) Close() {
	s.session.Close()
}

func (s *MongoStore) nodes(session *mgo.Session) *mgo.Collection {
	return session.DB(s.database).C(s.collection)
}

func (s *MongoStore) headers(session *mgo.Session) *mgo.Collection {
	return session.DB(s.database).C(s.collection + "_models")
}

// Save replaces the model stored under name with b. The nodes are written
// under a new generation before the header is switched to it, so a Save that
// fails midway leaves the previous model readable.
func (s *MongoStore) Save(name string, b *model.Batch) error {
	session := s.session.Copy()
	defer session.Close()

	gen := bson.NewObjectId().Hex()
	doc := encodeBatch(name, b)
	doc.Generation = gen
	nodes := make([]interface{}, len(doc.Nodes))
	for i := range doc.Nodes {
		doc.Nodes[i].Model = name
		doc.Nodes[i].Generation = gen
		nodes[i] = doc.Nodes[i]
	}
	doc.Nodes = nil

	if len(nodes) > 0 {
		if err := s.nodes(session).Insert(nodes...); err != nil {
			s.nodes(session).RemoveAll(generationQuery(name, gen))
			return errors.Wrapf(err, "inserting nodes of %s", name)
		}
	}
	if _, err := s.headers(session).UpsertId(name, doc); err != nil {
		s.nodes(session).RemoveAll(generationQuery(name, gen))
		return errors.Wrapf(err, "saving header of %s", name)
	}
	if _, err := s.nodes(session).RemoveAll(staleQuery(name, gen)); err != nil {
		return errors.Wrapf(err, "removing old nodes of %s", name)
	}
	return nil
}

// generationQuery selects the node documents of one saved generation.
// Headers written before generations existed select every node of the model.
func generationQuery(name, gen string) bson.M {
	if gen == "" {
		return bson.M{"model": name}
	}
	return bson.M{"model": name, "generation": gen}
}

func staleQuery(name, gen string) bson.M {
	return bson.M{"model": name, "generation": bson.M{"$ne": gen}}
}

// Load reads the model stored under name, nodes in the order they were saved.
func (s *MongoStore) Load(name string) (*model.Batch, error) {
	session := s.session.Copy()
	defer session.Close()

	var doc batchDoc
	if err := s.headers(session).FindId(name).One(&doc); err != nil {
		if err == mgo.ErrNotFound {
			return nil, errors.Wrapf(ErrNotFound, "%q in %s.%s", name, s.database, s.collection)
		}
		return nil, errors.Wrapf(err, "reading header of %s", name)
	}
	iter := s.nodes(session).Find(generationQuery(name, doc.Generation)).Sort("seq").Iter()
	var n nodeDoc
	for iter.Next(&n) {
		doc.Nodes = append(doc.Nodes, n)
		n = nodeDoc{}
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrapf(err, "reading nodes of %s", name)
	}
	return decodeBatch(s.sourceName(name), doc)
}

// Names lists the stored models.
func (s *MongoStore) Names() ([]string, error) {
	session := s.session.Copy()
	defer session.Close()

	var names []string
	err := s.headers(session).Find(nil).Sort("_id").Distinct("_id", &names)
	return names, err
}

func (s *MongoStore) sourceName(name string) string {
	return "mongo:" + s.database + "." + s.collection + "/" + name
}

// Source returns a model.Source loading name from the store.
func (s *MongoStore) Source(name string) model.Source {
	return mongoSource{store: s, name: name}
}

type mongoSource struct {
	store *MongoStore
	name  string
}

func (m mongoSource) Name() string { return m.store.sourceName(m.name) }

func (m mongoSource) Load(ctx context.Context) (*model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := m.store.Load(m.name)
	if err != nil {
		return nil, err
	}
	opcua.ContextLogger(ctx).Debugf("Read %d node documents", len(b.Definitions))
	return b, nil
}
