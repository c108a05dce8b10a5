package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testTable() *Table {
	def := "now()"
	return &Table{
		Schema: "propeiredb",
		Name:   "ppr",
		Columns: []Column{
			{Name: "address_hash", DataType: "text", Nullable: false},
			{Name: "sale_date", DataType: "timestamp without time zone", Nullable: false},
			{Name: "price", DataType: "numeric", Nullable: true},
			{Name: "loaded_at", DataType: "timestamp with time zone", Nullable: true, DefaultValue: &def},
		},
		Constraints: []Constraint{
			{Name: "ppr_pkey", Type: ConstraintPrimaryKey, Definition: "PRIMARY KEY (address_hash, sale_date)"},
		},
	}
}

func TestWriteAndLoadYAML(t *testing.T) {
	tbl := testTable()

	dir := t.TempDir()
	path := filepath.Join(dir, "out", "ppr.yaml")

	if err := tbl.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("table file not created: %v", err)
	}

	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	if loaded.QualifiedName() != "propeiredb.ppr" {
		t.Errorf("QualifiedName = %q", loaded.QualifiedName())
	}
	if len(loaded.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(loaded.Columns))
	}
	if loaded.Columns[3].DefaultValue == nil || *loaded.Columns[3].DefaultValue != "now()" {
		t.Errorf("default value not round-tripped: %+v", loaded.Columns[3])
	}
	if got := loaded.ConstraintNames(); len(got) != 1 || got[0] != "ppr_pkey" {
		t.Errorf("ConstraintNames = %v", got)
	}
}

func TestLoadYAML_Missing(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestColumnNames(t *testing.T) {
	got := testTable().ColumnNames()
	want := []string{"address_hash", "sale_date", "price", "loaded_at"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ColumnNames = %v, want %v", got, want)
	}
}

func TestColumnLookup(t *testing.T) {
	tbl := testTable()
	c, ok := tbl.Column("price")
	if !ok || c.DataType != "numeric" {
		t.Errorf("Column(price) = %+v, %v", c, ok)
	}
	if _, ok := tbl.Column("missing"); ok {
		t.Error("expected missing column lookup to fail")
	}
}

func TestQualifiedName_NoSchema(t *testing.T) {
	tbl := &Table{Name: "ppr"}
	if tbl.QualifiedName() != "ppr" {
		t.Errorf("QualifiedName = %q", tbl.QualifiedName())
	}
}

func TestSummary(t *testing.T) {
	s := testTable().Summary()
	if !strings.HasPrefix(s, "propeiredb.ppr: 4 columns, 1 unique constraints") {
		t.Errorf("unexpected summary header: %q", s)
	}
	if !strings.Contains(s, "constraint ppr_pkey (primary key)") {
		t.Errorf("summary missing constraint line: %q", s)
	}
}
