package schema

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/kairos-io/cryptroot/pkg/failure"
	"gopkg.in/yaml.v3"
)

// Load reads an installer document, YAML when the extension says so, TOML otherwise.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &failure.Error{Kind: failure.Configuration, Message: fmt.Sprintf("reading %s", path), Err: err}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseTOML(data)
	}
}

func ParseTOML(data []byte) (*Config, error) {
	c := &Config{}
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(c); err != nil {
		return nil, &failure.Error{Kind: failure.Configuration, Message: "parsing toml", Err: err}
	}
	c.setDefaults()
	return c, nil
}

func ParseYAML(data []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, &failure.Error{Kind: failure.Configuration, Message: "parsing yaml", Err: err}
	}
	c.setDefaults()
	return c, nil
}

func (c *Config) setDefaults() {
	for i := range c.Disks {
		c.Disks[i].SetDefaults()
	}
}

// Disk returns the disk plan at index.
func (c *Config) Disk(index int) (*DiskPlan, error) {
	if index < 0 || index >= len(c.Disks) {
		return nil, failure.Configurationf("disk %d not defined, config has %d disk(s)", index, len(c.Disks))
	}
	return &c.Disks[index], nil
}
