// Package config loads the settings shared by the nicofs tools from an
// optional YAML file and NICOFS_* environment variables. Environment
// variables win over the file.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/nano-go/nicofs/fs"
	"github.com/nano-go/nicofs/mkfs"
	"github.com/nano-go/nicofs/util"
)

const (
	envVarPrefix = "NICOFS"
	appName      = "nicofs"
)

type Config struct {
	Image       string `envconfig:"IMAGE"        yaml:"image"`
	Blocks      uint32 `envconfig:"BLOCKS"       yaml:"blocks"`
	Inodes      uint32 `envconfig:"INODES"       yaml:"inodes"`
	Force       bool   `envconfig:"FORCE"        yaml:"force"`
	CacheBlocks uint64 `envconfig:"CACHE_BLOCKS" yaml:"cacheBlocks"`
	InodeSlots  uint64 `envconfig:"INODE_SLOTS"  yaml:"inodeSlots"`
	Debug       uint64 `envconfig:"DEBUG"        yaml:"debug"`
	LogFormat   string `envconfig:"LOG_FORMAT"   yaml:"logFormat"`
}

// DefaultFile is where Load looks when NICOFS_CONFIG_FILE is unset.
func DefaultFile() string {
	return filepath.Join(os.Getenv("HOME"), ".config", appName+".yaml")
}

// Load reads the file named by NICOFS_CONFIG_FILE, or DefaultFile, and
// applies the environment on top. A missing file is not an error.
func Load() (*Config, error) {
	configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE")
	if configFile == "" {
		configFile = DefaultFile()
	}
	return LoadFile(configFile)
}

func LoadFile(configFile string) (*Config, error) {
	var c Config
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	c.setDefaults()
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.Blocks == 0 {
		c.Blocks = 2048
	}
	if c.Inodes == 0 {
		c.Inodes = 200
	}
	if c.CacheBlocks == 0 {
		c.CacheBlocks = fs.DefaultCacheBlocks
	}
	if c.InodeSlots == 0 {
		c.InodeSlots = fs.DefaultInodeSlots
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

func (c *Config) Validate() error {
	if y, e := func() (string, string) {
		if c.Image == "" {
			return "image", "IMAGE"
		}
		if c.LogFormat != "text" && c.LogFormat != "json" {
			return "logFormat", "LOG_FORMAT"
		}
		if c.CacheBlocks < fs.MinCacheBlocks {
			return "cacheBlocks", "CACHE_BLOCKS"
		}
		return "", ""
	}(); y != "" {
		return fmt.Errorf(
			"missing or invalid configuration: %s / %s_%s",
			y,
			envVarPrefix,
			e,
		)
	}
	return nil
}

// SetupLogging points the tracing in util at the configured level and
// format.
func (c *Config) SetupLogging() {
	util.SetDebug(c.Debug)
	util.SetFormat(c.LogFormat)
}

func (c *Config) MountOptions() fs.Options {
	return fs.Options{
		Dev:         1,
		CacheBlocks: c.CacheBlocks,
		InodeSlots:  c.InodeSlots,
	}
}

func (c *Config) FormatOptions() mkfs.Options {
	return mkfs.Options{
		Size:    c.Blocks,
		Ninodes: c.Inodes,
		Force:   c.Force,
	}
}
