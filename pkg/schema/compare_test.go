package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strptr(s string) *string { return &s }

func snapshotWithUsers() *Snapshot {
	s := NewSnapshot("app")
	s.Tables["users"] = Table{
		Name:      "users",
		CreateSQL: "CREATE TABLE `users` (`id` int NOT NULL, `email` varchar(255) NOT NULL)",
		Columns: []Column{
			{Name: "id", DataType: "int", Extra: "auto_increment"},
			{Name: "email", DataType: "varchar(255)"},
		},
		Indexes: []Index{{Name: "ux_email", Columns: []string{"email"}, Unique: true, Type: "BTREE"}},
	}
	return s
}

func TestCompareIdenticalSnapshots(t *testing.T) {
	src := snapshotWithUsers()
	tgt := snapshotWithUsers()
	res := Compare(src, tgt)
	if res.HasDifferences() {
		t.Fatalf("expected no differences, got %d", res.TotalDifferences())
	}
	if res.TotalDifferences() != 0 {
		t.Fatalf("TotalDifferences = %d", res.TotalDifferences())
	}
}

func TestCompareMissingTable(t *testing.T) {
	src := snapshotWithUsers()
	tgt := NewSnapshot("app")
	res := Compare(src, tgt)
	if len(res.Tables) != 1 {
		t.Fatalf("expected 1 table diff, got %d", len(res.Tables))
	}
	d := res.Tables[0]
	if d.Kind != Missing || d.Name != "users" || d.Source == nil {
		t.Fatalf("unexpected diff: %+v", d)
	}
	for _, td := range res.Tables {
		if td.Kind == Extra && td.Name == "users" {
			t.Fatal("missing table also reported as extra")
		}
	}
}

func TestCompareCaseInsensitiveNames(t *testing.T) {
	src := snapshotWithUsers()
	tgt := NewSnapshot("app")
	u := src.Tables["users"]
	u.Name = "USERS"
	tgt.Tables["USERS"] = u
	res := Compare(src, tgt)
	if res.HasDifferences() {
		t.Fatalf("case-only name difference reported: %d diffs", res.TotalDifferences())
	}
}

func TestCompareDifferentColumn(t *testing.T) {
	src := snapshotWithUsers()
	tgt := snapshotWithUsers()
	tbl := tgt.Tables["users"]
	tbl.Columns[1].DataType = "text"
	tgt.Tables["users"] = tbl

	res := Compare(src, tgt)
	if len(res.Tables) != 1 || res.Tables[0].Kind != Different {
		t.Fatalf("expected one different table, got %+v", res.Tables)
	}
	cols := res.Tables[0].Columns
	if len(cols) != 1 || cols[0].Kind != Different || cols[0].Name != "email" {
		t.Fatalf("unexpected column diffs: %+v", cols)
	}
}

func TestCompareUnchangedTableOmitted(t *testing.T) {
	// Identical nested objects: the table must not appear at all, in any
	// category.
	src := snapshotWithUsers()
	tgt := snapshotWithUsers()
	tgt.Tables["audit"] = Table{Name: "audit", Columns: []Column{{Name: "id", DataType: "int"}}}
	res := Compare(src, tgt)
	want := []string{"audit"}
	var got []string
	for _, d := range res.Tables {
		got = append(got, d.Name)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("table diff names (-want +got):\n%s", diff)
	}
	if res.Tables[0].Kind != Extra {
		t.Fatalf("expected extra, got %s", res.Tables[0].Kind)
	}
}

func TestCompareNullAwareDefaults(t *testing.T) {
	cases := []struct {
		name  string
		a, b  *string
		equal bool
	}{
		{"both nil", nil, nil, true},
		{"nil vs value", nil, strptr("0"), false},
		{"value vs nil", strptr("0"), nil, false},
		{"equal values", strptr("0"), strptr("0"), true},
		{"unequal values", strptr("0"), strptr("1"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := defaultsEqual(tc.a, tc.b); got != tc.equal {
				t.Fatalf("defaultsEqual = %v, want %v", got, tc.equal)
			}
		})
	}
}

func TestCompareIndexAndForeignKey(t *testing.T) {
	src := snapshotWithUsers()
	tgt := snapshotWithUsers()
	tbl := tgt.Tables["users"]
	tbl.Indexes = []Index{{Name: "ux_email", Columns: []string{"email"}, Unique: false, Type: "BTREE"}}
	tbl.ForeignKeys = []ForeignKey{{Name: "fk_org", Columns: []string{"org_id"}, ReferencedTable: "orgs", ReferencedColumns: []string{"id"}}}
	tgt.Tables["users"] = tbl

	res := Compare(src, tgt)
	if len(res.Tables) != 1 {
		t.Fatalf("expected one table diff, got %d", len(res.Tables))
	}
	d := res.Tables[0]
	if len(d.Indexes) != 1 || d.Indexes[0].Kind != Different {
		t.Fatalf("unexpected index diffs: %+v", d.Indexes)
	}
	if len(d.ForeignKeys) != 1 || d.ForeignKeys[0].Kind != Extra {
		t.Fatalf("unexpected fk diffs: %+v", d.ForeignKeys)
	}
}

func TestCompareObjectsNormalizedBody(t *testing.T) {
	src := NewSnapshot("app")
	tgt := NewSnapshot("app")
	src.Views["v_active"] = Object{Name: "v_active", Definition: "CREATE VIEW `v_active` AS SELECT  *\nFROM users"}
	tgt.Views["v_active"] = Object{Name: "v_active", Definition: "create view `v_active` as select * from users"}
	res := Compare(src, tgt)
	if len(res.Views) != 0 {
		t.Fatalf("formatting-only view drift reported: %+v", res.Views)
	}

	tgt.Views["v_active"] = Object{Name: "v_active", Definition: "CREATE VIEW `v_active` AS SELECT id FROM users"}
	res = Compare(src, tgt)
	if len(res.Views) != 1 || res.Views[0].Kind != Different {
		t.Fatalf("expected different view, got %+v", res.Views)
	}
}

func TestTotalDifferencesSumsAllLists(t *testing.T) {
	src := snapshotWithUsers()
	src.Views["v1"] = Object{Name: "v1", Definition: "CREATE VIEW `v1` AS SELECT 1"}
	src.Routines["p1"] = Object{Name: "p1", Definition: "CREATE PROCEDURE `p1` BEGIN SELECT 1; END"}
	src.Functions["f1"] = Object{Name: "f1", Definition: "CREATE FUNCTION `f1` RETURN 1"}
	src.Triggers["t1"] = Object{Name: "t1", Definition: "CREATE TRIGGER `t1` BEFORE INSERT ON `users` FOR EACH ROW SET @x = 1"}
	tgt := NewSnapshot("app")
	res := Compare(src, tgt)
	want := len(res.Tables) + len(res.Views) + len(res.Routines) + len(res.Functions) + len(res.Triggers)
	if res.TotalDifferences() != want || want != 5 {
		t.Fatalf("TotalDifferences = %d, want %d", res.TotalDifferences(), want)
	}
}
