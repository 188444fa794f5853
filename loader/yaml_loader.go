package loader

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"

	"github.com/ridoystarlord/archiveprune/database"
	"github.com/ridoystarlord/archiveprune/sandbox"
	"github.com/ridoystarlord/archiveprune/workflow"
)

// DatabaseKey is the reserved file_paths entry describing the store itself.
const DatabaseKey = "DataBase"

// MissingDatabasePath is returned when a file based store has no DataBase
// entry in file_paths.
const MissingDatabasePath = errors.ConstError("missing " + DatabaseKey + " entry in file_paths")

// EnvDatabaseURL overrides store.dsn for network drivers.
const EnvDatabaseURL = "DATABASE_URL"

type yamlFile struct {
	Workflows []yamlWorkflow      `yaml:"workflows"`
	FilePaths map[string]yamlPath `yaml:"file_paths"`
	Store     yamlStore           `yaml:"store"`
	Sandbox   yamlSandbox         `yaml:"sandbox"`
}

type yamlWorkflow struct {
	Table       string `yaml:"table"`
	Column      string `yaml:"column"`
	WhereClause string `yaml:"where_clause"`
	Params      string `yaml:"params"`
	Parent      string `yaml:"parent"`
}

type yamlPath struct {
	Path string `yaml:"path"`
	Hash string `yaml:"hash"`
}

type yamlStore struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	ForeignKeys bool   `yaml:"foreign_keys"`
}

type yamlSandbox struct {
	Policy string `yaml:"policy"`
}

// FilePath maps a table onto the directory holding its record files. Hash
// is only meaningful on the DataBase entry.
type FilePath struct {
	Path string
	Hash string
}

// StoreConfig is the optional store section of the configuration.
type StoreConfig struct {
	Driver      string
	DSN         string
	ForeignKeys bool
}

// Config is the parsed configuration document.
type Config struct {
	Workflows     []workflow.Node
	FilePaths     map[string]FilePath
	Store         StoreConfig
	SandboxPolicy string
}

// Resolved is a Config bound to a base directory and environment.
type Resolved struct {
	// Files maps a table name onto its absolute record directory.
	Files map[string]string
	// Store is ready to pass to database.Open.
	Store database.Config
	// ExpectedHash is the schema fingerprint to verify, empty to skip.
	ExpectedHash string
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Annotate(err, "reading config file")
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing %s", filename)
	}
	return cfg, nil
}

// ParseConfig decodes a configuration document. Unknown keys are ignored.
func ParseConfig(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))

	var yf yamlFile
	if err := dec.Decode(&yf); err != nil {
		if err == io.EOF {
			return nil, errors.NotValidf("empty configuration")
		}
		return nil, errors.Annotate(err, "unmarshalling YAML")
	}

	cfg := &Config{
		FilePaths: make(map[string]FilePath, len(yf.FilePaths)),
		Store: StoreConfig{
			Driver:      yf.Store.Driver,
			DSN:         yf.Store.DSN,
			ForeignKeys: yf.Store.ForeignKeys,
		},
		SandboxPolicy: yf.Sandbox.Policy,
	}
	for _, w := range yf.Workflows {
		cfg.Workflows = append(cfg.Workflows, workflow.Node{
			Table:       w.Table,
			Column:      w.Column,
			WhereClause: w.WhereClause,
			Params:      w.Params,
			Parent:      w.Parent,
		})
	}
	for key, p := range yf.FilePaths {
		cfg.FilePaths[key] = FilePath{Path: p.Path, Hash: strings.TrimSpace(p.Hash)}
	}
	return cfg, nil
}

// Resolve sandboxes every configured path and works out how to reach the
// store. For SQLite the DataBase path is the database file; other drivers
// take store.dsn, overridden by DATABASE_URL from getenv.
func (c *Config) Resolve(sb *sandbox.Sandbox, getenv func(string) string) (*Resolved, error) {
	driver, err := database.ParseDialect(c.Store.Driver)
	if err != nil {
		return nil, errors.Trace(err)
	}

	r := &Resolved{
		Files: make(map[string]string, len(c.FilePaths)),
		Store: database.Config{Driver: driver, ForeignKeys: c.Store.ForeignKeys},
	}
	for key, p := range c.FilePaths {
		resolved, err := sb.Resolve(p.Path)
		if err != nil {
			return nil, errors.Annotatef(err, "file_paths.%s", key)
		}
		if key == DatabaseKey {
			r.ExpectedHash = p.Hash
			if driver.IsFileBased() {
				r.Store.DSN = resolved
			}
			continue
		}
		r.Files[key] = resolved
	}

	if driver.IsFileBased() {
		if _, ok := c.FilePaths[DatabaseKey]; !ok {
			return nil, errors.Trace(MissingDatabasePath)
		}
		return r, nil
	}

	r.Store.DSN = c.Store.DSN
	if getenv != nil {
		if url := getenv(EnvDatabaseURL); url != "" {
			r.Store.DSN = url
		}
	}
	if r.Store.DSN == "" {
		return nil, errors.NotValidf("%s store without dsn or %s", driver, EnvDatabaseURL)
	}
	return r, nil
}
