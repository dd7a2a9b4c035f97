// Command uanodes loads OPC UA information models and answers node
// identifier queries against them.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/comsys/uanodes/modules/opcua"
	"github.com/comsys/uanodes/modules/opcua/codegen"
	"github.com/comsys/uanodes/modules/opcua/model"
	"github.com/comsys/uanodes/modules/opcua/nodeid"
	"github.com/comsys/uanodes/modules/opcua/nodeset"
	"github.com/comsys/uanodes/modules/opcua/registry"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	zflags "github.com/zmap/zflags"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type command struct {
	flags  *opcua.Flags
	args   []string
	stdout io.Writer
	stores *stores
}

type verb func(ctx context.Context, c *command) error

var verbs = map[string]verb{
	"check":    check,
	"resolve":  resolve,
	"describe": describe,
	"list":     list,
	"export":   export,
	"generate": generate,
	"cache":    cache,
	"serve":    serve,
}

func run(args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	f, err := opcua.DefaultFlags(opcua.ConfigPath(args))
	if err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 2
	}
	parser := zflags.NewParser(f, zflags.HelpFlag|zflags.PassDoubleDash)
	parser.Usage = "[flags] <verb> [args]\n\n" + f.Help()
	rest, _, _, err := parser.ParseCommandLine(args)
	if err != nil {
		if fe, ok := err.(*zflags.Error); ok && fe.Type == zflags.ErrHelp {
			fmt.Fprintln(stdout, fe.Message)
			return 0
		}
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 2
	}
	if len(rest) == 0 {
		fmt.Fprintf(stderr, "error: no verb given\n\n%s\n", f.Help())
		return 2
	}
	v, ok := verbs[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "error: unknown verb %q\n\n%s\n", rest[0], f.Help())
		return 2
	}
	if err := f.Validate(rest); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 2
	}
	if err := f.Init(); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}

	s, err := openStores(f)
	if err != nil {
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	defer s.Close()

	ctx := opcua.WithModel(context.Background(), rest[0])
	c := &command{flags: f, args: rest[1:], stdout: stdout, stores: s}
	if err := v(ctx, c); err != nil {
		if errors.Cause(err) == errUsage {
			fmt.Fprintf(stderr, "error: %s\n\n%s\n", err, f.Help())
			return 2
		}
		fmt.Fprintf(stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

func (c *command) load(ctx context.Context) (*model.Model, error) {
	m, _, err := loadModel(ctx, c.flags, c.stores, true)
	return m, err
}

func (c *command) writeJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout, "%s\n", out)
	return err
}

// output returns the writer for --output and a function closing it.
func (c *command) output() (io.Writer, func() error, error) {
	if c.flags.Output == "" {
		return c.stdout, func() error { return nil }, nil
	}
	fh, err := os.Create(c.flags.Output)
	if err != nil {
		return nil, nil, err
	}
	return fh, fh.Close, nil
}

func check(ctx context.Context, c *command) error {
	_, report, err := loadModel(ctx, c.flags, c.stores, true)
	if report != nil {
		if werr := c.writeJSON(report); werr != nil {
			return werr
		}
	}
	return err
}

func resolve(ctx context.Context, c *command) error {
	if len(c.args) != 2 {
		return errors.Wrap(errUsage, "resolve takes a namespace uri and a name")
	}
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	l := opcua.NewLookup(m)
	n, err := l.ResolveConstant(c.args[0], c.args[1])
	if err != nil {
		return err
	}
	rec, err := l.Describe(n)
	if err != nil {
		return err
	}
	return c.writeJSON(rec)
}

func describe(ctx context.Context, c *command) error {
	if len(c.args) != 1 {
		return errors.Wrap(errUsage, "describe takes one node id")
	}
	e, err := nodeid.ParseExpanded(c.args[0])
	if err != nil {
		return err
	}
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	l := opcua.NewLookup(m)
	n, err := l.ResolveExpanded(e)
	if err != nil {
		return err
	}
	rec, err := l.Describe(n)
	if err != nil {
		return err
	}
	return c.writeJSON(rec)
}

func list(ctx context.Context, c *command) error {
	if len(c.args) != 1 {
		return errors.Wrap(errUsage, "list takes a node class")
	}
	class, ok := registry.ParseClass(c.args[0])
	if !ok {
		return errors.Wrapf(errUsage, "unknown node class %q", c.args[0])
	}
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	m.AllOfClass(class).Each(func(rec *registry.Record) bool {
		fmt.Fprintf(c.stdout, "%s\t%s\n", rec.ID, rec.BrowseName)
		return true
	})
	return nil
}

func export(ctx context.Context, c *command) error {
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	w, done, err := c.output()
	if err != nil {
		return err
	}
	if err := nodeset.Export(w, m); err != nil {
		done()
		return err
	}
	return done()
}

func generate(ctx context.Context, c *command) error {
	if c.flags.GenNamespace == "" {
		return errors.Wrap(errUsage, "generate needs --namespace")
	}
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	w, done, err := c.output()
	if err != nil {
		return err
	}
	err = codegen.Generate(w, m, codegen.Options{Package: c.flags.Package, NamespaceURI: c.flags.GenNamespace})
	if err != nil {
		done()
		return err
	}
	return done()
}

// cache loads the sources other than the stores and saves the result in
// every configured store under --cache-name.
func cache(ctx context.Context, c *command) error {
	if c.stores.bolt == nil && c.stores.mongo == nil {
		return errors.Wrap(errUsage, "cache needs --cache or --mongo")
	}
	m, _, err := loadModel(ctx, c.flags, c.stores, false)
	if err != nil {
		return err
	}
	b := m.Batch(c.flags.CacheName)
	cl := opcua.ContextLogger(ctx)
	if c.stores.bolt != nil {
		if err := c.stores.bolt.Save(c.flags.CacheName, b); err != nil {
			return err
		}
		cl.Infof("Cached %d definitions in %s", len(b.Definitions), c.stores.bolt.Path())
	}
	if c.stores.mongo != nil {
		if err := c.stores.mongo.Save(c.flags.CacheName, b); err != nil {
			return err
		}
		cl.Infof("Stored %d definitions in %s/%s", len(b.Definitions), c.flags.MongoDatabase, c.flags.MongoCollection)
	}
	return nil
}

// serve publishes /metrics and keeps a lookup current: SIGHUP reloads every
// source and swaps the new model in, a failed reload keeps the old one.
func serve(ctx context.Context, c *command) error {
	reg := prometheus.NewRegistry()
	metrics, err := opcua.NewMetrics(reg)
	if err != nil {
		return err
	}
	m, err := c.load(ctx)
	if err != nil {
		return err
	}
	l := opcua.NewLookup(m, opcua.WithMetrics(metrics))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: c.flags.Listen, Handler: mux}
	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	cl := opcua.ContextLogger(ctx)
	cl.Infof("Serving metrics on %s", c.flags.Listen)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	for {
		select {
		case err := <-errc:
			return err
		case sig := <-sigs:
			if sig != syscall.SIGHUP {
				cl.Infof("Received %s, shutting down", sig)
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(sctx)
			}
			next, err := c.load(ctx)
			if err != nil {
				cl.WithError(err).Error("Reload failed, keeping generation ", l.Generation())
				continue
			}
			cl.Infof("Reloaded model as generation %d", l.Reload(next))
		}
	}
}
