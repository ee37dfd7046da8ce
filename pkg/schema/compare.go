package schema

import (
	"sort"
	"strings"
)

// DiffKind tags how a named object compares between source and target.
type DiffKind string

const (
	// Missing objects exist in source but not in target.
	Missing DiffKind = "missing"
	// Different objects exist on both sides with unequal definitions.
	Different DiffKind = "different"
	// Extra objects exist in target but not in source. They are recorded
	// but never diffed further.
	Extra DiffKind = "extra"
)

// ObjectDiff records one view/routine/function/trigger difference.
type ObjectDiff struct {
	Kind   DiffKind
	Name   string
	Source *Object
	Target *Object
}

// ColumnDiff records one column difference within a table.
type ColumnDiff struct {
	Kind   DiffKind
	Name   string
	Source *Column
	Target *Column
}

// IndexDiff records one index difference within a table.
type IndexDiff struct {
	Kind   DiffKind
	Name   string
	Source *Index
	Target *Index
}

// ForeignKeyDiff records one foreign key difference within a table.
type ForeignKeyDiff struct {
	Kind   DiffKind
	Name   string
	Source *ForeignKey
	Target *ForeignKey
}

// TableDiff records one table difference. A table present on both sides is
// emitted only when at least one nested difference exists.
type TableDiff struct {
	Kind        DiffKind
	Name        string
	Source      *Table
	Target      *Table
	Columns     []ColumnDiff
	Indexes     []IndexDiff
	ForeignKeys []ForeignKeyDiff
}

// ComparisonResult is the structured diff between two snapshots, one ordered
// list per object category.
type ComparisonResult struct {
	Tables    []TableDiff
	Views     []ObjectDiff
	Routines  []ObjectDiff
	Functions []ObjectDiff
	Triggers  []ObjectDiff
}

// HasDifferences reports whether any category recorded a difference.
func (r *ComparisonResult) HasDifferences() bool {
	return r.TotalDifferences() > 0
}

// TotalDifferences is always derived from the lists, never cached.
func (r *ComparisonResult) TotalDifferences() int {
	return len(r.Tables) + len(r.Views) + len(r.Routines) + len(r.Functions) + len(r.Triggers)
}

// Compare produces the structured diff between a source and a target
// snapshot. Object names match case-insensitively in every category.
func Compare(source, target *Snapshot) *ComparisonResult {
	res := &ComparisonResult{}
	res.Tables = compareTables(source.Tables, target.Tables)
	res.Views = compareObjects(source.Views, target.Views)
	res.Routines = compareObjects(source.Routines, target.Routines)
	res.Functions = compareObjects(source.Functions, target.Functions)
	res.Triggers = compareObjects(source.Triggers, target.Triggers)
	return res
}

func compareTables(src, tgt map[string]Table) []TableDiff {
	srcIdx := make(map[string]Table, len(src))
	for name, t := range src {
		srcIdx[strings.ToLower(name)] = t
	}
	tgtIdx := make(map[string]Table, len(tgt))
	for name, t := range tgt {
		tgtIdx[strings.ToLower(name)] = t
	}

	var diffs []TableDiff
	for _, key := range sortedKeys(srcIdx) {
		s := srcIdx[key]
		t, ok := tgtIdx[key]
		if !ok {
			sc := s
			diffs = append(diffs, TableDiff{Kind: Missing, Name: s.Name, Source: &sc})
			continue
		}
		cols := compareColumns(s.Columns, t.Columns)
		idxs := compareIndexes(s.Indexes, t.Indexes)
		fks := compareForeignKeys(s.ForeignKeys, t.ForeignKeys)
		if len(cols) == 0 && len(idxs) == 0 && len(fks) == 0 {
			continue
		}
		sc, tc := s, t
		diffs = append(diffs, TableDiff{
			Kind: Different, Name: s.Name, Source: &sc, Target: &tc,
			Columns: cols, Indexes: idxs, ForeignKeys: fks,
		})
	}
	for _, key := range sortedKeys(tgtIdx) {
		if _, ok := srcIdx[key]; ok {
			continue
		}
		t := tgtIdx[key]
		tc := t
		diffs = append(diffs, TableDiff{Kind: Extra, Name: t.Name, Target: &tc})
	}
	return diffs
}

func compareColumns(src, tgt []Column) []ColumnDiff {
	tgtIdx := make(map[string]Column, len(tgt))
	for _, c := range tgt {
		tgtIdx[strings.ToLower(c.Name)] = c
	}
	srcSeen := make(map[string]struct{}, len(src))

	var diffs []ColumnDiff
	for _, s := range src {
		key := strings.ToLower(s.Name)
		srcSeen[key] = struct{}{}
		t, ok := tgtIdx[key]
		if !ok {
			sc := s
			diffs = append(diffs, ColumnDiff{Kind: Missing, Name: s.Name, Source: &sc})
			continue
		}
		if !columnsEqual(s, t) {
			sc, tc := s, t
			diffs = append(diffs, ColumnDiff{Kind: Different, Name: s.Name, Source: &sc, Target: &tc})
		}
	}
	for _, t := range tgt {
		if _, ok := srcSeen[strings.ToLower(t.Name)]; ok {
			continue
		}
		tc := t
		diffs = append(diffs, ColumnDiff{Kind: Extra, Name: t.Name, Target: &tc})
	}
	return diffs
}

func columnsEqual(a, b Column) bool {
	if !strings.EqualFold(a.DataType, b.DataType) {
		return false
	}
	if a.Nullable != b.Nullable {
		return false
	}
	if !defaultsEqual(a.Default, b.Default) {
		return false
	}
	return strings.EqualFold(a.Extra, b.Extra)
}

// defaultsEqual treats two absent defaults as equal and an absent default as
// unequal to any present one.
func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func compareIndexes(src, tgt []Index) []IndexDiff {
	tgtIdx := make(map[string]Index, len(tgt))
	for _, i := range tgt {
		tgtIdx[strings.ToLower(i.Name)] = i
	}
	srcSeen := make(map[string]struct{}, len(src))

	var diffs []IndexDiff
	for _, s := range src {
		key := strings.ToLower(s.Name)
		srcSeen[key] = struct{}{}
		t, ok := tgtIdx[key]
		if !ok {
			sc := s
			diffs = append(diffs, IndexDiff{Kind: Missing, Name: s.Name, Source: &sc})
			continue
		}
		if !indexesEqual(s, t) {
			sc, tc := s, t
			diffs = append(diffs, IndexDiff{Kind: Different, Name: s.Name, Source: &sc, Target: &tc})
		}
	}
	for _, t := range tgt {
		if _, ok := srcSeen[strings.ToLower(t.Name)]; ok {
			continue
		}
		tc := t
		diffs = append(diffs, IndexDiff{Kind: Extra, Name: t.Name, Target: &tc})
	}
	return diffs
}

func indexesEqual(a, b Index) bool {
	return strings.EqualFold(strings.Join(a.Columns, ","), strings.Join(b.Columns, ",")) &&
		a.Unique == b.Unique &&
		strings.EqualFold(a.Type, b.Type)
}

func compareForeignKeys(src, tgt []ForeignKey) []ForeignKeyDiff {
	tgtIdx := make(map[string]ForeignKey, len(tgt))
	for _, f := range tgt {
		tgtIdx[strings.ToLower(f.Name)] = f
	}
	srcSeen := make(map[string]struct{}, len(src))

	var diffs []ForeignKeyDiff
	for _, s := range src {
		key := strings.ToLower(s.Name)
		srcSeen[key] = struct{}{}
		t, ok := tgtIdx[key]
		if !ok {
			sc := s
			diffs = append(diffs, ForeignKeyDiff{Kind: Missing, Name: s.Name, Source: &sc})
			continue
		}
		if !foreignKeysEqual(s, t) {
			sc, tc := s, t
			diffs = append(diffs, ForeignKeyDiff{Kind: Different, Name: s.Name, Source: &sc, Target: &tc})
		}
	}
	for _, t := range tgt {
		if _, ok := srcSeen[strings.ToLower(t.Name)]; ok {
			continue
		}
		tc := t
		diffs = append(diffs, ForeignKeyDiff{Kind: Extra, Name: t.Name, Target: &tc})
	}
	return diffs
}

func foreignKeysEqual(a, b ForeignKey) bool {
	return strings.EqualFold(strings.Join(a.Columns, ","), strings.Join(b.Columns, ",")) &&
		strings.EqualFold(a.ReferencedTable, b.ReferencedTable) &&
		strings.EqualFold(strings.Join(a.ReferencedColumns, ","), strings.Join(b.ReferencedColumns, ",")) &&
		strings.EqualFold(a.OnDelete, b.OnDelete) &&
		strings.EqualFold(a.OnUpdate, b.OnUpdate)
}

func compareObjects(src, tgt map[string]Object) []ObjectDiff {
	srcIdx := make(map[string]Object, len(src))
	for name, o := range src {
		srcIdx[strings.ToLower(name)] = o
	}
	tgtIdx := make(map[string]Object, len(tgt))
	for name, o := range tgt {
		tgtIdx[strings.ToLower(name)] = o
	}

	var diffs []ObjectDiff
	for _, key := range sortedKeys(srcIdx) {
		s := srcIdx[key]
		t, ok := tgtIdx[key]
		if !ok {
			sc := s
			diffs = append(diffs, ObjectDiff{Kind: Missing, Name: s.Name, Source: &sc})
			continue
		}
		if normalizeBody(s.Definition) != normalizeBody(t.Definition) {
			sc, tc := s, t
			diffs = append(diffs, ObjectDiff{Kind: Different, Name: s.Name, Source: &sc, Target: &tc})
		}
	}
	for _, key := range sortedKeys(tgtIdx) {
		if _, ok := srcIdx[key]; ok {
			continue
		}
		t := tgtIdx[key]
		tc := t
		diffs = append(diffs, ObjectDiff{Kind: Extra, Name: t.Name, Target: &tc})
	}
	return diffs
}

// normalizeBody collapses whitespace runs and lowercases definition text so
// formatting-only catalog differences do not register as drift.
func normalizeBody(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
