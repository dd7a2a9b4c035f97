package opcua_test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	uanodes "github.com/comsys/uanodes/modules/opcua"
	log "github.com/sirupsen/logrus"
	zflags "github.com/zmap/zflags"
	. "gopkg.in/check.v1"
)

type ConfigSuite struct {
	dir string
}

var _ = Suite(&ConfigSuite{})

func (s *ConfigSuite) SetUpTest(c *C) {
	s.dir = c.MkDir()
}

func (s *ConfigSuite) write(c *C, name, content string) string {
	path := filepath.Join(s.dir, name)
	c.Assert(ioutil.WriteFile(path, []byte(content), 0644), IsNil)
	return path
}

func (s *ConfigSuite) TestDefaults(c *C) {
	f, err := uanodes.DefaultFlags("")
	c.Assert(err, IsNil)
	c.Check(f.BrowseTimeout, Equals, 60*time.Minute)
	c.Check(f.SleepTime, Equals, 500*time.Millisecond)
	c.Check(f.MaxChildren, Equals, 50)
	c.Check(f.ReadChunkSize, Equals, 50)
	c.Check(f.BrowseChunkSize, Equals, 50)
	c.Check(f.CacheName, Equals, "default")
	c.Check(f.MongoCollection, Equals, "nodes")
	c.Check(f.Listen, Equals, ":9464")
	c.Check(f.Bundled, Equals, false)
}

func (s *ConfigSuite) TestFileOverridesDefaults(c *C) {
	path := s.write(c, "uanodes.toml", `
[model]
files = ["di.xml", "robotics.csv"]
server-uri = "urn:cell1"

[browse]
endpoint = "opc.tcp://robot:4840"
sleep = "10ms"
max-children = 5

[log]
debug = true
`)
	f, err := uanodes.DefaultFlags(path)
	c.Assert(err, IsNil)
	c.Check(f.Config, Equals, path)
	c.Check(f.Models, DeepEquals, []string{"di.xml", "robotics.csv"})
	c.Check(f.ServerURI, Equals, "urn:cell1")
	c.Check(f.Endpoint, Equals, "opc.tcp://robot:4840")
	c.Check(f.SleepTime, Equals, 10*time.Millisecond)
	c.Check(f.MaxChildren, Equals, 5)
	c.Check(f.ReadChunkSize, Equals, 50)
	c.Check(f.Debug, Equals, true)
}

func (s *ConfigSuite) TestCommandLineTurnsOffFileSwitches(c *C) {
	path := s.write(c, "switches.toml", `
[model]
files = ["base.xml"]
bundled = true
no-base = true

[log]
debug = true
`)
	f, err := uanodes.DefaultFlags(path)
	c.Assert(err, IsNil)
	rest, _, _, err := zflags.NewParser(f, zflags.PassDoubleDash).ParseCommandLine([]string{"--no-bundled", "--base", "--no-debug", "check"})
	c.Assert(err, IsNil)
	c.Check(rest, DeepEquals, []string{"check"})

	defer log.SetLevel(log.GetLevel())
	log.SetLevel(log.InfoLevel)
	c.Assert(f.Validate(rest), IsNil)
	c.Assert(f.Init(), IsNil)
	c.Check(f.Bundled, Equals, false)
	c.Check(f.NoBase, Equals, false)
	c.Check(f.Debug, Equals, false)
	c.Check(log.GetLevel(), Equals, log.InfoLevel)

	// without the negations the file wins
	f, err = uanodes.DefaultFlags(path)
	c.Assert(err, IsNil)
	c.Assert(f.Validate(nil), IsNil)
	c.Check(f.Bundled, Equals, true)
	c.Check(f.NoBase, Equals, true)
}

func (s *ConfigSuite) TestBadFiles(c *C) {
	_, err := uanodes.DefaultFlags(s.write(c, "bad-duration.toml", "[browse]\nsleep = \"soon\"\n"))
	c.Check(err, ErrorMatches, ".*browse.sleep.*")

	_, err = uanodes.DefaultFlags(s.write(c, "bad-syntax.toml", "[browse\n"))
	c.Check(err, NotNil)

	_, err = uanodes.DefaultFlags(filepath.Join(s.dir, "missing.toml"))
	c.Check(err, NotNil)
}

func (s *ConfigSuite) TestConfigPath(c *C) {
	c.Check(uanodes.ConfigPath([]string{"check", "--config", "a.toml"}), Equals, "a.toml")
	c.Check(uanodes.ConfigPath([]string{"--config=b.toml", "serve"}), Equals, "b.toml")
	c.Check(uanodes.ConfigPath([]string{"check", "--config"}), Equals, "")
	c.Check(uanodes.ConfigPath(nil), Equals, "")
}

func (s *ConfigSuite) TestValidate(c *C) {
	tests := []struct {
		flags uanodes.Flags
		err   string
	}{
		{uanodes.Flags{Bundled: true}, ""},
		{uanodes.Flags{Models: []string{"base.xml"}, NoBase: true}, ""},
		{uanodes.Flags{Endpoint: "opc.tcp://robot:4840"}, ""},
		{uanodes.Flags{}, "no model source.*"},
		{uanodes.Flags{Bundled: true, NoBase: true}, "--no-base needs.*"},
		{uanodes.Flags{Endpoint: "http://robot"}, ".*not an opc.tcp URL"},
		{uanodes.Flags{Bundled: true, CertPath: "cert.pem"}, "--cert and --key.*"},
		{uanodes.Flags{Bundled: true, MaxChildren: -1}, ".*must not be negative"},
	}
	for _, t := range tests {
		err := t.flags.Validate(nil)
		if t.err == "" {
			c.Check(err, IsNil)
		} else {
			c.Check(err, ErrorMatches, t.err)
		}
	}
}

func (s *ConfigSuite) TestInitFillsDefaults(c *C) {
	f := &uanodes.Flags{Bundled: true, MaxChildren: 7}
	c.Assert(f.Init(), IsNil)
	c.Check(f.MaxChildren, Equals, 7)
	c.Check(f.BrowseChunkSize, Equals, 50)
	c.Check(f.SleepTime, Equals, 500*time.Millisecond)
	c.Check(strings.HasPrefix(f.ApplicationURI, "urn:com.comsys.uanodes:"), Equals, true)
	c.Check(f.ApplicationName, Not(Equals), "")
	c.Check(f.Help(), Matches, "(?s).*resolve <uri> <name>.*")
}

func (s *ConfigSuite) TestGenerateCert(c *C) {
	req := uanodes.CertRequest{
		Hosts:          "localhost,127.0.0.1",
		ApplicationURI: "urn:com.comsys.uanodes:test",
		RSABits:        1024,
		CertFile:       filepath.Join(s.dir, "cert.pem"),
		KeyFile:        filepath.Join(s.dir, "key.pem"),
	}
	c.Assert(uanodes.GenerateCert(req), IsNil)
	info, err := os.Stat(req.KeyFile)
	c.Assert(err, IsNil)
	c.Check(info.Mode().Perm(), Equals, os.FileMode(0600))

	c.Check(uanodes.GenerateCert(uanodes.CertRequest{CertFile: req.CertFile, KeyFile: req.KeyFile}), ErrorMatches, ".*at least one host")
}
