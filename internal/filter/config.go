package filter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
	"gopkg.in/yaml.v3"
)

// ErrConfigFormat is the message shown when a comparison options file has the wrong shape.
var ErrConfigFormat = errors.New("XML file with comparison options: error format")

// LoadConfig reads filter options from an XML or YAML file, chosen by extension.
func LoadConfig(path string) (*Options, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadConfigYAML(path)
	}
	return LoadConfigFile(path)
}

// LoadConfigFile reads the engine's comparison options file: a root element
// holding flat rows such as <OPTION NAME="AREAS" VALUE="1-5"/>.
func LoadConfigFile(path string) (*Options, error) {
	cfg, err := ReadConfigRows(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg)
}

// ReadConfigRows returns the NAME/VALUE rows of an options file.
func ReadConfigRows(path string) (map[string]string, error) {
	doc, err := parser.ParseFile(path, parser.ParseOptions{})
	if err != nil {
		if errors.Is(err, models.ErrFormat) {
			return nil, &models.FormatError{Path: path, Err: ErrConfigFormat}
		}
		return nil, err
	}
	root := doc.Path(parser.RootTag(doc))
	if root == nil || len(root.Slots) == 0 {
		return nil, &models.FormatError{Path: path, Err: ErrConfigFormat}
	}

	cfg := make(map[string]string)
	for _, slot := range root.Slots {
		for _, row := range slot.Node.All() {
			name, ok := row.Attr("NAME")
			if !ok || name == "" {
				return nil, &models.FormatError{Path: path, Err: ErrConfigFormat}
			}
			value, ok := row.Attr("VALUE")
			if !ok {
				value = strings.TrimSpace(row.Text)
			}
			cfg[name] = value
		}
	}
	return cfg, nil
}

// LoadConfigYAML reads a flat YAML mapping of the same keys.
func LoadConfigYAML(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &models.FormatError{Path: path, Err: fmt.Errorf("%w: %v", ErrConfigFormat, err)}
	}
	if raw == nil {
		return nil, &models.FormatError{Path: path, Err: ErrConfigFormat}
	}

	cfg := make(map[string]string, len(raw))
	for k, v := range raw {
		switch x := v.(type) {
		case nil:
			cfg[k] = ""
		case bool:
			if x {
				cfg[k] = "1"
			} else {
				cfg[k] = "0"
			}
		case []any:
			parts := make([]string, len(x))
			for i, p := range x {
				parts[i] = fmt.Sprint(p)
			}
			cfg[k] = strings.Join(parts, ",")
		case map[string]any:
			return nil, &models.FormatError{Path: path, Err: fmt.Errorf("%w: key %s is not a scalar", ErrConfigFormat, k)}
		default:
			cfg[k] = fmt.Sprint(x)
		}
	}
	return FromConfig(cfg)
}
