package main

import (
	"context"

	"github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/browser"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeset"
	"github.com/comsys/uanodes/modules/opcua/robotics"
	"github.com/comsys/uanodes/modules/opcua/store"
	"github.com/pkg/errors"
)

// stores are the persistent model stores named by the flags. The cache verb
// writes to them; every other verb reads from them.
type stores struct {
	bolt  *store.BoltCache
	mongo *store.MongoStore
}

func openStores(f *opcua.Flags) (*stores, error) {
	s := new(stores)
	var err error
	if f.CacheFile != "" {
		if s.bolt, err = store.OpenBolt(f.CacheFile); err != nil {
			return nil, err
		}
	}
	if f.MongoURL != "" {
		if s.mongo, err = store.DialMongo(f.MongoURL, f.MongoDatabase, f.MongoCollection); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *stores) Close() {
	if s.bolt != nil {
		s.bolt.Close()
	}
	if s.mongo != nil {
		s.mongo.Close()
	}
}

// liveSource connects lazily so that a failed connection is reported as
// the load stage of the live source.
type liveSource struct {
	flags *opcua.Flags
}

func (l liveSource) Name() string { return "live:" + l.flags.Endpoint }

func (l liveSource) Load(ctx context.Context) (*model.Batch, error) {
	ctx, cancel := context.WithTimeout(ctx, l.flags.BrowseTimeout)
	defer cancel()

	c, err := opcua.Connect(ctx, l.flags)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	b := &browser.UABrowse{
		Client:          c,
		Endpoint:        l.flags.Endpoint,
		SleepTime:       l.flags.SleepTime,
		BrowseChunkSize: l.flags.BrowseChunkSize,
		ReadChunkSize:   l.flags.ReadChunkSize,
		MaxChildren:     l.flags.MaxChildren,
	}
	batch, err := b.Load(ctx)
	if err != nil {
		return nil, err
	}
	opcua.ContextLogger(ctx).Infof("Imported %d nodes with %d browse and %d read requests",
		len(batch.Definitions), b.NumBrowseReq, b.NumReadReq)
	return batch, nil
}

// modelSources lists the configured sources in load order: bundled models,
// model files, stored models, then the live server.
func modelSources(f *opcua.Flags, s *stores, readStores bool) []model.Source {
	var out []model.Source
	if f.Bundled {
		out = append(out, robotics.Sources()...)
	}
	for _, path := range f.Models {
		out = append(out, nodeset.File{Path: path})
	}
	if readStores {
		if s.bolt != nil {
			out = append(out, s.bolt.Source(f.CacheName))
		}
		if s.mongo != nil {
			out = append(out, s.mongo.Source(f.CacheName))
		}
	}
	if f.Endpoint != "" {
		out = append(out, liveSource{flags: f})
	}
	return out
}

func builderOptions(f *opcua.Flags) []model.Option {
	var opts []model.Option
	if f.NoBase {
		opts = append(opts, model.WithoutBase())
	}
	if f.ServerURI != "" {
		opts = append(opts, model.WithServerURI(f.ServerURI))
	}
	return opts
}

func loadModel(ctx context.Context, f *opcua.Flags, s *stores, readStores bool) (*model.Model, *opcua.Report, error) {
	sources := modelSources(f, s, readStores)
	if len(sources) == 0 {
		return nil, nil, errors.New("no model source to load")
	}
	return opcua.LoadModel(ctx, sources, builderOptions(f)...)
}
