package scale

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/pavelanni/examreport/internal/model"
)

// The built-in breakpoints are placeholders until official calibration data
// is available; deployments replace them with --score-table.
//
//go:embed tables.json
var defaultTables []byte

type subjectDoc struct {
	Code    string   `mapstructure:"code"`
	Name    string   `mapstructure:"name"`
	Aliases []string `mapstructure:"aliases"`
	Steps   []Step   `mapstructure:"steps"`
}

// Default returns the built-in score tables.
func Default() (*Tables, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaultTables)); err != nil {
		return nil, fmt.Errorf("read built-in tables: %w", err)
	}
	return fromViper(v)
}

// Load reads score tables from path. The format (json, yaml, toml) follows
// the file extension. An empty path returns the built-in tables.
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read score tables %s: %w", path, err)
	}
	ts, err := fromViper(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("loaded score tables", "path", path, "subjects", len(ts.order))
	return ts, nil
}

func fromViper(v *viper.Viper) (*Tables, error) {
	var docs []subjectDoc
	if err := v.UnmarshalKey("subjects", &docs); err != nil {
		return nil, fmt.Errorf("decode subjects: %w", err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no subjects defined")
	}
	tables := make([]*Table, 0, len(docs))
	for _, d := range docs {
		t, err := NewTable(model.Subject(d.Code), d.Name, d.Steps)
		if err != nil {
			return nil, err
		}
		t.Aliases = d.Aliases
		tables = append(tables, t)
	}
	return NewTables(tables...)
}
