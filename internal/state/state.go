// Package state keeps a small history of upsert runs so that `propeire status`
// can show what was last loaded where.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/propeire/propeire/internal/config"
	"github.com/propeire/propeire/internal/report"
)

const DefaultPath = "~/.propeire/state.yaml"

// Run is the summary of one upsert into a table.
type Run struct {
	Source     string    `yaml:"source"` // CSV path or register/period
	Mode       string    `yaml:"mode"`
	Constraint string    `yaml:"constraint"`
	Status     string    `yaml:"status"`
	Total      int       `yaml:"total"`
	Written    int       `yaml:"written"`
	Unchanged  int       `yaml:"unchanged"`
	Failed     int       `yaml:"failed"`
	ReportPath string    `yaml:"report_path,omitempty"`
	FinishedAt time.Time `yaml:"finished_at"`
}

// State maps schema.table to the last run against it.
type State struct {
	LastUpdated time.Time      `yaml:"last_updated"`
	Tables      map[string]Run `yaml:"tables,omitempty"`
}

// New creates an empty state.
func New() *State {
	return &State{Tables: make(map[string]Run)}
}

// Load reads the state from disk. A missing file is an empty state.
func Load(path string) (*State, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if s.Tables == nil {
		s.Tables = make(map[string]Run)
	}
	return s, nil
}

// Save writes the state to disk.
func (s *State) Save(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Record stores the outcome of rep as the latest run against its table.
func (s *State) Record(source string, rep *report.UploadReport, reportPath string) {
	s.Tables[key(rep.Schema, rep.Table)] = Run{
		Source:     source,
		Mode:       rep.Mode,
		Constraint: rep.Constraint,
		Status:     rep.Status,
		Total:      rep.Rows.Total,
		Written:    rep.Rows.Written,
		Unchanged:  rep.Rows.Unchanged,
		Failed:     rep.Rows.Failed,
		ReportPath: reportPath,
		FinishedAt: rep.GeneratedAt,
	}
}

// Last returns the latest run against schema.table.
func (s *State) Last(schemaName, table string) (Run, bool) {
	r, ok := s.Tables[key(schemaName, table)]
	return r, ok
}

// TableNames returns the recorded tables in sorted order.
func (s *State) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for k := range s.Tables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func key(schemaName, table string) string {
	return schemaName + "." + table
}
