package opcua

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Flags configures model loading, the live importer and the metrics server.
// Values come from an optional TOML file first and the command line second.
// Switches the file turns on are turned off again by their negated flag.
type Flags struct {
	Config  string `long:"config" description:"TOML file with default settings"`
	Debug   bool   `long:"debug" description:"Enable debug logging"`
	NoDebug bool   `long:"no-debug" description:"Disable debug logging enabled in the config file"`

	Models    []string `long:"model" description:"Model file to load (.csv, .xml, .yaml); repeatable, loaded in order"`
	Bundled   bool     `long:"bundled" description:"Load the bundled DI and Robotics models"`
	NoBundled bool     `long:"no-bundled" description:"Do not load the bundled models enabled in the config file"`
	NoBase    bool     `long:"no-base" description:"Do not bootstrap the base namespace; a model file must provide it"`
	Base      bool     `long:"base" description:"Bootstrap the base namespace even if the config file sets no-base"`
	ServerURI string   `long:"server-uri" description:"Namespace URI reserved at index 1 for the local server"`

	CacheFile string `long:"cache" description:"Bolt file caching loaded models"`
	CacheName string `long:"cache-name" description:"Name of the cached model to load or store"`

	MongoURL        string `long:"mongo" description:"MongoDB URL of a model store"`
	MongoDatabase   string `long:"mongo-db" description:"MongoDB database name"`
	MongoCollection string `long:"mongo-collection" description:"MongoDB collection holding node documents"`

	Endpoint        string        `long:"endpoint" description:"opc.tcp endpoint to import the type model from"`
	CertPath        string        `long:"cert" description:"Client certificate (PEM); generated when missing"`
	KeyPath         string        `long:"key" description:"Client private key (PEM); generated when missing"`
	BrowseTimeout   time.Duration `long:"browse-timeout" description:"Timeout for importing a live address space"`
	SleepTime       time.Duration `long:"sleep-time" description:"Time to sleep between two consecutive requests"`
	MaxChildren     int           `long:"max-children" description:"Max number of instance declarations to import per node"`
	ReadChunkSize   int           `long:"read-chunk-size" description:"Max number of attributes to read in a single request"`
	BrowseChunkSize int           `long:"browse-chunk-size" description:"Max number of nodes to browse per request"`
	ProductURI      string        `long:"product-uri" description:"The product URI shown to remote servers"`
	ApplicationURI  string        `long:"application-uri" description:"The application URI shown to remote servers"`
	ApplicationName string        `long:"application-name" description:"The application name shown to remote servers"`

	Listen       string `long:"listen" description:"Address serve listens on for /metrics"`
	Output       string `long:"output" description:"Output file of export and generate; stdout when empty"`
	Package      string `long:"package" description:"Package name of generated code"`
	GenNamespace string `long:"namespace" description:"Namespace URI generate emits constants for"`
}

const defaultConfig = `
# uanodes configuration.

[model]
bundled = false
server-uri = ""

[cache]
name = "default"

[mongo]
database = "uanodes"
collection = "nodes"

[browse]
timeout = "60m"
sleep = "500ms"
max-children = 50
read-chunk-size = 50
browse-chunk-size = 50
application-name = "uanodes"
product-uri = "urn:com.comsys.uanodes"

[serve]
listen = ":9464"
`

type fileConfig struct {
	Model struct {
		Files     []string `toml:"files"`
		Bundled   bool     `toml:"bundled"`
		NoBase    bool     `toml:"no-base"`
		ServerURI string   `toml:"server-uri"`
	} `toml:"model"`
	Cache struct {
		File string `toml:"file"`
		Name string `toml:"name"`
	} `toml:"cache"`
	Mongo struct {
		URL        string `toml:"url"`
		Database   string `toml:"database"`
		Collection string `toml:"collection"`
	} `toml:"mongo"`
	Browse struct {
		Endpoint        string `toml:"endpoint"`
		Cert            string `toml:"cert"`
		Key             string `toml:"key"`
		Timeout         string `toml:"timeout"`
		Sleep           string `toml:"sleep"`
		MaxChildren     int    `toml:"max-children"`
		ReadChunkSize   int    `toml:"read-chunk-size"`
		BrowseChunkSize int    `toml:"browse-chunk-size"`
		ApplicationName string `toml:"application-name"`
		ApplicationURI  string `toml:"application-uri"`
		ProductURI      string `toml:"product-uri"`
	} `toml:"browse"`
	Serve struct {
		Listen string `toml:"listen"`
	} `toml:"serve"`
	Log struct {
		Debug bool `toml:"debug"`
	} `toml:"log"`
}

// DefaultFlags returns the built-in defaults, overlaid with the TOML file at
// path when path is not empty.
func DefaultFlags(path string) (*Flags, error) {
	var c fileConfig
	if _, err := toml.Decode(defaultConfig, &c); err != nil {
		return nil, errors.Wrap(err, "decoding default config")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &c); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", path)
		}
	}
	f := &Flags{
		Config:          path,
		Debug:           c.Log.Debug,
		Models:          c.Model.Files,
		Bundled:         c.Model.Bundled,
		NoBase:          c.Model.NoBase,
		ServerURI:       c.Model.ServerURI,
		CacheFile:       c.Cache.File,
		CacheName:       c.Cache.Name,
		MongoURL:        c.Mongo.URL,
		MongoDatabase:   c.Mongo.Database,
		MongoCollection: c.Mongo.Collection,
		Endpoint:        c.Browse.Endpoint,
		CertPath:        c.Browse.Cert,
		KeyPath:         c.Browse.Key,
		MaxChildren:     c.Browse.MaxChildren,
		ReadChunkSize:   c.Browse.ReadChunkSize,
		BrowseChunkSize: c.Browse.BrowseChunkSize,
		ApplicationName: c.Browse.ApplicationName,
		ApplicationURI:  c.Browse.ApplicationURI,
		ProductURI:      c.Browse.ProductURI,
		Listen:          c.Serve.Listen,
	}
	var err error
	if f.BrowseTimeout, err = parseDuration("browse.timeout", c.Browse.Timeout); err != nil {
		return nil, err
	}
	if f.SleepTime, err = parseDuration("browse.sleep", c.Browse.Sleep); err != nil {
		return nil, err
	}
	return f, nil
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Wrapf(err, "config key %s", key)
	}
	return d, nil
}

// ConfigPath returns the value of --config in args, if any.
func ConfigPath(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

// negate clears the switches whose negated flag was given.
func (f *Flags) negate() {
	if f.NoDebug {
		f.Debug = false
	}
	if f.NoBundled {
		f.Bundled = false
	}
	if f.Base {
		f.NoBase = false
	}
}

// Validate checks that the flags are consistent.
// On success, returns nil.
// On failure, returns an error instance describing the error.
func (f *Flags) Validate(args []string) error {
	f.negate()
	if len(f.Models) == 0 && !f.Bundled && f.CacheFile == "" && f.MongoURL == "" && f.Endpoint == "" {
		return errors.New("no model source: give --model, --bundled, --cache, --mongo or --endpoint")
	}
	if f.NoBase && len(f.Models) == 0 && f.CacheFile == "" && f.MongoURL == "" {
		return errors.New("--no-base needs a model file or store providing the base namespace")
	}
	if f.Endpoint != "" && !strings.HasPrefix(f.Endpoint, "opc.tcp://") {
		return errors.Errorf("endpoint %q is not an opc.tcp URL", f.Endpoint)
	}
	if (f.CertPath == "") != (f.KeyPath == "") {
		return errors.New("--cert and --key must be given together")
	}
	if f.MaxChildren < 0 || f.ReadChunkSize < 0 || f.BrowseChunkSize < 0 {
		return errors.New("chunk sizes and max children must not be negative")
	}
	return nil
}

// Help returns the usage summary of the verbs.
func (f *Flags) Help() string {
	return `Verbs:
  check                 load the configured sources and print a report
  resolve <uri> <name>  print the node id of a browse name or underscore path
  describe <nodeid>     print the record of a node id or expanded node id
  list <class>          print all nodes of a node class
  export                write the loaded model as YAML
  generate              write Go constants for --namespace
  cache                 store the loaded model in --cache under --cache-name
  serve                 serve /metrics and reload the model on SIGHUP`
}

// Init fills in defaults for unset values and applies the log level.
func (f *Flags) Init() error {
	f.negate()
	if f.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if f.BrowseTimeout == 0 {
		f.BrowseTimeout = 60 * time.Minute
	}
	if f.SleepTime == 0 {
		f.SleepTime = 500 * time.Millisecond
	}
	if f.MaxChildren == 0 {
		f.MaxChildren = 50
	}
	if f.ReadChunkSize == 0 {
		f.ReadChunkSize = 50
	}
	if f.BrowseChunkSize == 0 {
		f.BrowseChunkSize = 50
	}
	if f.CacheName == "" {
		f.CacheName = "default"
	}
	if f.MongoDatabase == "" {
		f.MongoDatabase = "uanodes"
	}
	if f.MongoCollection == "" {
		f.MongoCollection = "nodes"
	}
	if f.Listen == "" {
		f.Listen = ":9464"
	}
	if f.ApplicationURI == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return errors.Wrap(err, "hostname for application URI")
		}
		f.ApplicationURI = fmt.Sprintf("urn:com.comsys.uanodes:%s", hostname)
	}
	if f.ProductURI == "" {
		f.ProductURI = "urn:com.comsys.uanodes"
	}
	if f.ApplicationName == "" {
		f.ApplicationName = "uanodes"
	}
	if f.Endpoint != "" && f.CertPath == "" {
		f.CertPath = "cert.pem"
		f.KeyPath = "key.pem"
	}
	if f.Package == "" {
		f.Package = "nodes"
	}
	log.Debugf("Configured browse timeout %s, sleep time %s, %d max children, chunk sizes read %d browse %d",
		f.BrowseTimeout, f.SleepTime, f.MaxChildren, f.ReadChunkSize, f.BrowseChunkSize)
	return nil
}
