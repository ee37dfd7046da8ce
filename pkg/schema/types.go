package schema

// Column describes one table column in declaration order.
type Column struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
	Extra    string // e.g. auto_increment
}

// Index describes one index on a table.
type Index struct {
	Name    string
	Columns []string
	Unique  bool
	Type    string
}

// ForeignKey describes one foreign key constraint.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
}

// Table owns its columns, indexes and foreign keys in declaration order.
// CreateSQL is the verbatim CREATE statement as reported by the catalog.
type Table struct {
	Name        string
	CreateSQL   string
	Columns     []Column
	Indexes     []Index
	ForeignKeys []ForeignKey
}

// Object is a named schema object whose identity for comparison is its
// definition text: views, routines, functions and triggers.
type Object struct {
	Name       string
	Definition string
}

// Snapshot is the complete set of schema object definitions read from one
// endpoint at one point in time. It is built fresh for every comparison and
// never cached across runs.
type Snapshot struct {
	Database  string
	Tables    map[string]Table
	Views     map[string]Object
	Routines  map[string]Object
	Functions map[string]Object
	Triggers  map[string]Object
}

// NewSnapshot returns an empty snapshot for the named database.
func NewSnapshot(database string) *Snapshot {
	return &Snapshot{
		Database:  database,
		Tables:    map[string]Table{},
		Views:     map[string]Object{},
		Routines:  map[string]Object{},
		Functions: map[string]Object{},
		Triggers:  map[string]Object{},
	}
}
