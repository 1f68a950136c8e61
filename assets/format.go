package assets

import (
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Format selects the encoding of catalog files.
type Format int

const (
	JSON Format = iota
	YAML
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case YAML:
		return "yaml"
	}
	return "unknown"
}

// Ext returns the file extension written for f.
func (f Format) Ext() string {
	if f == YAML {
		return ".yaml"
	}
	return ".json"
}

// FormatOf picks the format of path from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".yaml", ".yml":
		return YAML, nil
	}
	return 0, eris.Wrapf(ErrUnknownFormat, "%s", path)
}

func (f Format) marshal(v any) ([]byte, error) {
	if f == YAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

// document is implemented by every storage the catalog persists.
type document interface {
	UnmarshalJSON([]byte) error
	UnmarshalYAML(*yaml.Node) error
}

// unmarshal decodes bz into d, calling d's own decoder directly so that its
// errors reach the caller unwrapped.
func (f Format) unmarshal(bz []byte, d document) error {
	if f == JSON {
		return d.UnmarshalJSON(bz)
	}
	var node yaml.Node
	if err := yaml.Unmarshal(bz, &node); err != nil {
		return eris.Wrap(err, "parse yaml")
	}
	return d.UnmarshalYAML(&node)
}
