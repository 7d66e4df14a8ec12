package command

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/jetdb/jetdb/jet/catalog"
	"github.com/jetdb/jetdb/jet/jetlog"
	"github.com/jetdb/jetdb/jet/page"
)

// fileConfig is the yaml shape jetutil accepts via -config. It maps a
// handful of catalog.Config knobs; everything else keeps its default.
type fileConfig struct {
	LogLevel           string `yaml:"log_level"`
	ChunkedIO          bool   `yaml:"chunked_io"`
	EnforceForeignKeys *bool  `yaml:"enforce_foreign_keys"`
}

func loadConfig(path string) (catalog.Config, bool, error) {
	cfg := catalog.DefaultConfig()
	if path == "" {
		return cfg, false, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, false, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	fc := fileConfig{}
	if err := yaml.NewDecoder(f).Decode(&fc); err != nil {
		return cfg, false, fmt.Errorf("parsing config file: %w", err)
	}
	if fc.LogLevel != "" {
		level, err := logrus.ParseLevel(fc.LogLevel)
		if err != nil {
			return cfg, false, fmt.Errorf("parsing log_level: %w", err)
		}
		cfg.Logger = jetlog.New(level)
	}
	if fc.EnforceForeignKeys != nil {
		cfg.EnforceForeignKeys = *fc.EnforceForeignKeys
	}
	return cfg, fc.ChunkedIO, nil
}

// openDatabase opens path read-write and binds a Database over it.
func openDatabase(path string, cfg catalog.Config, chunked bool) (*catalog.Database, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	backing, err := page.OpenFileBacking(f, chunked)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	db, err := catalog.Open(backing, backing, cfg)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return db, f, nil
}
