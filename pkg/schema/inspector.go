package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dbrepl/dbrepl/pkg/dbconn"
)

// Inspector reads the full schema snapshot for one endpoint from the
// engine's catalog views.
type Inspector struct {
	db     *sql.DB
	driver string
	schema string
}

// NewInspector creates an inspector over an open connection. schema is the
// database (MySQL) or namespace (Postgres, defaulting to public) to read.
func NewInspector(db *sql.DB, driver, schema string) *Inspector {
	if driver == "postgres" && schema == "" {
		schema = "public"
	}
	return &Inspector{db: db, driver: driver, schema: schema}
}

// Inspect queries the catalog and returns a fresh snapshot. Declaration
// order of columns, index members and foreign key members is preserved.
func (in *Inspector) Inspect(ctx context.Context) (*Snapshot, error) {
	snap := NewSnapshot(in.schema)
	tables, err := in.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range tables {
		t, err := in.inspectTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
		snap.Tables[name] = t
	}
	if err := in.inspectViews(ctx, snap); err != nil {
		return nil, err
	}
	if err := in.inspectRoutines(ctx, snap); err != nil {
		return nil, err
	}
	if err := in.inspectTriggers(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (in *Inspector) tableNames(ctx context.Context) ([]string, error) {
	const q = `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`
	rows, err := in.db.QueryContext(ctx, in.rebind(q), in.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return names, nil
}

func (in *Inspector) inspectTable(ctx context.Context, name string) (Table, error) {
	t := Table{Name: name}
	cols, err := in.columns(ctx, name)
	if err != nil {
		return t, err
	}
	t.Columns = cols
	if t.Indexes, err = in.indexes(ctx, name); err != nil {
		return t, err
	}
	if t.ForeignKeys, err = in.foreignKeys(ctx, name); err != nil {
		return t, err
	}
	if in.driver == "mysql" {
		var tbl, ddl string
		q := fmt.Sprintf("SHOW CREATE TABLE %s", dbconn.QuoteIdent(in.driver, name))
		if err := in.db.QueryRowContext(ctx, q).Scan(&tbl, &ddl); err != nil {
			return t, fmt.Errorf("show create: %w", err)
		}
		t.CreateSQL = ddl
	} else {
		t.CreateSQL = synthesizeCreate(in.driver, t)
	}
	return t, nil
}

func (in *Inspector) columns(ctx context.Context, table string) ([]Column, error) {
	var q string
	if in.driver == "postgres" {
		q = `SELECT column_name, data_type, is_nullable, column_default, '' FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2 ORDER BY ordinal_position`
	} else {
		q = `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`
	}
	rows, err := in.db.QueryContext(ctx, q, in.schema, table)
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	defer rows.Close()
	var cols []Column
	for rows.Next() {
		var (
			c        Column
			nullable string
			def      sql.NullString
		)
		if err := rows.Scan(&c.Name, &c.DataType, &nullable, &def, &c.Extra); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		c.Nullable = strings.EqualFold(nullable, "YES")
		if def.Valid {
			v := def.String
			c.Default = &v
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return cols, nil
}

func (in *Inspector) indexes(ctx context.Context, table string) ([]Index, error) {
	if in.driver == "postgres" {
		return in.pgIndexes(ctx, table)
	}
	const q = `SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, INDEX_TYPE FROM INFORMATION_SCHEMA.STATISTICS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY' ORDER BY INDEX_NAME, SEQ_IN_INDEX`
	rows, err := in.db.QueryContext(ctx, q, in.schema, table)
	if err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}
	defer rows.Close()
	var (
		idxs  []Index
		order []string
		byNm  = map[string]*Index{}
	)
	for rows.Next() {
		var (
			name, col, typ string
			nonUnique      int
		)
		if err := rows.Scan(&name, &col, &nonUnique, &typ); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ix, ok := byNm[name]
		if !ok {
			ix = &Index{Name: name, Unique: nonUnique == 0, Type: typ}
			byNm[name] = ix
			order = append(order, name)
		}
		ix.Columns = append(ix.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for _, n := range order {
		idxs = append(idxs, *byNm[n])
	}
	return idxs, nil
}

func (in *Inspector) pgIndexes(ctx context.Context, table string) ([]Index, error) {
	const q = `SELECT indexname, indexdef FROM pg_indexes WHERE schemaname = $1 AND tablename = $2 AND indexname NOT LIKE '%_pkey' ORDER BY indexname`
	rows, err := in.db.QueryContext(ctx, q, in.schema, table)
	if err != nil {
		return nil, fmt.Errorf("indexes: %w", err)
	}
	defer rows.Close()
	var idxs []Index
	for rows.Next() {
		var name, def string
		if err := rows.Scan(&name, &def); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		idxs = append(idxs, parsePgIndexDef(name, def))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return idxs, nil
}

// parsePgIndexDef extracts column list and uniqueness from a pg_indexes
// definition like "CREATE UNIQUE INDEX x ON t USING btree (a, b)".
func parsePgIndexDef(name, def string) Index {
	ix := Index{Name: name, Type: "btree"}
	upper := strings.ToUpper(def)
	ix.Unique = strings.Contains(upper, "UNIQUE INDEX")
	if i := strings.Index(upper, "USING "); i >= 0 {
		rest := def[i+len("USING "):]
		if j := strings.IndexByte(rest, ' '); j >= 0 {
			ix.Type = rest[:j]
		}
	}
	open := strings.IndexByte(def, '(')
	end := strings.LastIndexByte(def, ')')
	if open >= 0 && end > open {
		for _, c := range strings.Split(def[open+1:end], ",") {
			ix.Columns = append(ix.Columns, strings.Trim(strings.TrimSpace(c), `"`))
		}
	}
	return ix
}

func (in *Inspector) foreignKeys(ctx context.Context, table string) ([]ForeignKey, error) {
	var q string
	if in.driver == "postgres" {
		q = `SELECT tc.constraint_name, kcu.column_name, ccu.table_name, ccu.column_name, rc.delete_rule, rc.update_rule
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu ON kcu.constraint_name = tc.constraint_name AND kcu.constraint_schema = tc.constraint_schema
JOIN information_schema.constraint_column_usage ccu ON ccu.constraint_name = tc.constraint_name AND ccu.constraint_schema = tc.constraint_schema
JOIN information_schema.referential_constraints rc ON rc.constraint_name = tc.constraint_name AND rc.constraint_schema = tc.constraint_schema
WHERE tc.table_schema = $1 AND tc.table_name = $2 AND tc.constraint_type = 'FOREIGN KEY'
ORDER BY tc.constraint_name, kcu.ordinal_position`
	} else {
		q = `SELECT kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME, rc.DELETE_RULE, rc.UPDATE_RULE
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc ON rc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ? AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`
	}
	rows, err := in.db.QueryContext(ctx, q, in.schema, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	defer rows.Close()
	var (
		fks   []ForeignKey
		order []string
		byNm  = map[string]*ForeignKey{}
	)
	for rows.Next() {
		var name, col, refTable, refCol, onDelete, onUpdate string
		if err := rows.Scan(&name, &col, &refTable, &refCol, &onDelete, &onUpdate); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		fk, ok := byNm[name]
		if !ok {
			fk = &ForeignKey{Name: name, ReferencedTable: refTable, OnDelete: onDelete, OnUpdate: onUpdate}
			byNm[name] = fk
			order = append(order, name)
		}
		fk.Columns = append(fk.Columns, col)
		fk.ReferencedColumns = append(fk.ReferencedColumns, refCol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	for _, n := range order {
		fks = append(fks, *byNm[n])
	}
	return fks, nil
}

func (in *Inspector) inspectViews(ctx context.Context, snap *Snapshot) error {
	var q string
	if in.driver == "postgres" {
		q = `SELECT viewname, definition FROM pg_views WHERE schemaname = $1 ORDER BY viewname`
	} else {
		q = `SELECT TABLE_NAME, VIEW_DEFINITION FROM INFORMATION_SCHEMA.VIEWS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME`
	}
	rows, err := in.db.QueryContext(ctx, q, in.schema)
	if err != nil {
		return fmt.Errorf("views: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, body string
		if err := rows.Scan(&name, &body); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		def := fmt.Sprintf("CREATE VIEW %s AS %s", dbconn.QuoteIdent(in.driver, name), strings.TrimSuffix(strings.TrimSpace(body), ";"))
		snap.Views[name] = Object{Name: name, Definition: def}
	}
	return rows.Err()
}

func (in *Inspector) inspectRoutines(ctx context.Context, snap *Snapshot) error {
	var q string
	if in.driver == "postgres" {
		q = `SELECT routine_name, routine_type, routine_definition FROM information_schema.routines WHERE routine_schema = $1 ORDER BY routine_name`
	} else {
		q = `SELECT ROUTINE_NAME, ROUTINE_TYPE, ROUTINE_DEFINITION FROM INFORMATION_SCHEMA.ROUTINES WHERE ROUTINE_SCHEMA = ? ORDER BY ROUTINE_NAME`
	}
	rows, err := in.db.QueryContext(ctx, q, in.schema)
	if err != nil {
		return fmt.Errorf("routines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name, typ string
			body      sql.NullString
		)
		if err := rows.Scan(&name, &typ, &body); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		kind := "PROCEDURE"
		if strings.EqualFold(typ, "FUNCTION") {
			kind = "FUNCTION"
		}
		def := fmt.Sprintf("CREATE %s %s %s", kind, dbconn.QuoteIdent(in.driver, name), strings.TrimSpace(body.String))
		obj := Object{Name: name, Definition: def}
		if kind == "FUNCTION" {
			snap.Functions[name] = obj
		} else {
			snap.Routines[name] = obj
		}
	}
	return rows.Err()
}

func (in *Inspector) inspectTriggers(ctx context.Context, snap *Snapshot) error {
	var q string
	if in.driver == "postgres" {
		q = `SELECT trigger_name, action_timing, event_manipulation, event_object_table, action_statement FROM information_schema.triggers WHERE trigger_schema = $1 ORDER BY trigger_name`
	} else {
		q = `SELECT TRIGGER_NAME, ACTION_TIMING, EVENT_MANIPULATION, EVENT_OBJECT_TABLE, ACTION_STATEMENT FROM INFORMATION_SCHEMA.TRIGGERS WHERE TRIGGER_SCHEMA = ? ORDER BY TRIGGER_NAME`
	}
	rows, err := in.db.QueryContext(ctx, q, in.schema)
	if err != nil {
		return fmt.Errorf("triggers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, timing, event, table, body string
		if err := rows.Scan(&name, &timing, &event, &table, &body); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		def := fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s FOR EACH ROW %s",
			dbconn.QuoteIdent(in.driver, name), timing, event, dbconn.QuoteIdent(in.driver, table), strings.TrimSpace(body))
		snap.Triggers[name] = Object{Name: name, Definition: def}
	}
	return rows.Err()
}

// rebind converts ? placeholders to $n for postgres.
func (in *Inspector) rebind(q string) string {
	if in.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// synthesizeCreate assembles a CREATE TABLE statement from inspected column
// metadata for engines that do not expose the original DDL.
func synthesizeCreate(driver string, t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", dbconn.QuoteIdent(driver, t.Name))
	for i, c := range t.Columns {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString("  ")
		b.WriteString(ColumnSQL(driver, c))
	}
	b.WriteString("\n)")
	return b.String()
}

// ColumnSQL renders the column definition clause used by CREATE and ALTER
// statements.
func ColumnSQL(driver string, c Column) string {
	var b strings.Builder
	b.WriteString(dbconn.QuoteIdent(driver, c.Name))
	b.WriteByte(' ')
	b.WriteString(c.DataType)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	if c.Extra != "" {
		b.WriteByte(' ')
		b.WriteString(c.Extra)
	}
	return b.String()
}
