package script

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dbrepl/dbrepl/pkg/dbconn"
	"github.com/dbrepl/dbrepl/pkg/schema"
)

// Script is an ordered DDL script intended to bring the target schema in
// line with the source. Statements carry no trailing terminator; SQL renders
// the executable text with terminator-change directives where needed.
type Script struct {
	Statements []string
}

// Empty reports whether the script contains no statements.
func (s Script) Empty() bool { return len(s.Statements) == 0 }

// SQL renders the script as plain SQL text. Statements whose body contains
// the default terminator are wrapped in an alternate-terminator directive so
// the splitter keeps them whole.
func (s Script) SQL() string {
	var b strings.Builder
	for _, stmt := range s.Statements {
		if strings.HasPrefix(stmt, "--") {
			b.WriteString(stmt)
			b.WriteByte('\n')
			continue
		}
		if strings.Contains(stmt, ";") {
			b.WriteString("DELIMITER $$\n")
			b.WriteString(stmt)
			b.WriteString("$$\nDELIMITER ;\n")
			continue
		}
		b.WriteString(stmt)
		b.WriteString(";\n")
	}
	return b.String()
}

// Catalog introspection returns some default literals unquoted even though
// the engine requires quoting on CREATE/ALTER.
var (
	bareGUIDDefault     = regexp.MustCompile(`(?i)(DEFAULT\s+)([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)
	bareZeroDateDefault = regexp.MustCompile(`(DEFAULT\s+)(0000-00-00(?: 00:00:00)?)`)
)

// Sanitize rewrites unquoted GUID-shaped and zero-valued datetime default
// literals as quoted string literals.
func Sanitize(stmt string) string {
	stmt = bareGUIDDefault.ReplaceAllString(stmt, "${1}'${2}'")
	stmt = bareZeroDateDefault.ReplaceAllString(stmt, "${1}'${2}'")
	return stmt
}

// Generate turns a comparison result into an ordered script. Category order
// is fixed: tables, views, routines, functions, triggers, because later
// categories may reference earlier ones and the target engine resolves
// references at creation time.
func Generate(res *schema.ComparisonResult, driver string) Script {
	g := generator{driver: driver}
	for _, d := range res.Tables {
		g.table(d)
	}
	for _, d := range res.Views {
		g.object(d, "VIEW")
	}
	for _, d := range res.Routines {
		g.object(d, "PROCEDURE")
	}
	for _, d := range res.Functions {
		g.object(d, "FUNCTION")
	}
	for _, d := range res.Triggers {
		g.object(d, "TRIGGER")
	}
	return Script{Statements: g.stmts}
}

type generator struct {
	driver string
	stmts  []string
}

func (g *generator) emit(stmt string) {
	g.stmts = append(g.stmts, Sanitize(stmt))
}

func (g *generator) table(d schema.TableDiff) {
	switch d.Kind {
	case schema.Missing:
		g.emit(d.Source.CreateSQL)
	case schema.Different:
		g.alterTable(d)
	case schema.Extra:
		// Extra tables are never dropped automatically.
	}
}

func (g *generator) alterTable(d schema.TableDiff) {
	tbl := dbconn.QuoteIdent(g.driver, d.Name)
	var extras []string
	for _, c := range d.Columns {
		switch c.Kind {
		case schema.Missing:
			g.emit(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", tbl, schema.ColumnSQL(g.driver, *c.Source)))
		case schema.Different:
			g.emit(g.modifyColumn(tbl, *c.Source))
		case schema.Extra:
			extras = append(extras, c.Name)
		}
	}
	if len(extras) > 0 {
		g.stmts = append(g.stmts, fmt.Sprintf("-- table %s has extra column(s) on target, not dropped: %s", d.Name, strings.Join(extras, ", ")))
	}
	for _, ix := range d.Indexes {
		switch ix.Kind {
		case schema.Missing:
			g.emit(g.createIndex(tbl, *ix.Source))
		case schema.Different:
			g.emit(g.dropIndex(tbl, ix.Name))
			g.emit(g.createIndex(tbl, *ix.Source))
		}
	}
	for _, fk := range d.ForeignKeys {
		switch fk.Kind {
		case schema.Missing:
			g.emit(g.addForeignKey(tbl, *fk.Source))
		case schema.Different:
			g.emit(g.dropForeignKey(tbl, fk.Name))
			g.emit(g.addForeignKey(tbl, *fk.Source))
		}
	}
}

func (g *generator) modifyColumn(tbl string, c schema.Column) string {
	if g.driver == "postgres" {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", tbl, dbconn.QuoteIdent(g.driver, c.Name), c.DataType)
	}
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", tbl, schema.ColumnSQL(g.driver, c))
}

func (g *generator) createIndex(tbl string, ix schema.Index) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, dbconn.QuoteIdent(g.driver, ix.Name), tbl, dbconn.QuoteIdents(g.driver, ix.Columns))
}

func (g *generator) dropIndex(tbl, name string) string {
	if g.driver == "postgres" {
		return fmt.Sprintf("DROP INDEX %s", dbconn.QuoteIdent(g.driver, name))
	}
	return fmt.Sprintf("DROP INDEX %s ON %s", dbconn.QuoteIdent(g.driver, name), tbl)
}

func (g *generator) addForeignKey(tbl string, fk schema.ForeignKey) string {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		tbl, dbconn.QuoteIdent(g.driver, fk.Name),
		dbconn.QuoteIdents(g.driver, fk.Columns),
		dbconn.QuoteIdent(g.driver, fk.ReferencedTable),
		dbconn.QuoteIdents(g.driver, fk.ReferencedColumns))
	if fk.OnDelete != "" {
		stmt += " ON DELETE " + fk.OnDelete
	}
	if fk.OnUpdate != "" {
		stmt += " ON UPDATE " + fk.OnUpdate
	}
	return stmt
}

func (g *generator) dropForeignKey(tbl, name string) string {
	if g.driver == "postgres" {
		return fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", tbl, dbconn.QuoteIdent(g.driver, name))
	}
	return fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", tbl, dbconn.QuoteIdent(g.driver, name))
}

// object emits drop-if-exists plus the verbatim source definition for a
// missing or different view, routine, function or trigger.
func (g *generator) object(d schema.ObjectDiff, kind string) {
	if d.Kind == schema.Extra {
		return
	}
	g.emit(fmt.Sprintf("DROP %s IF EXISTS %s", kind, dbconn.QuoteIdent(g.driver, d.Name)))
	g.emit(d.Source.Definition)
}
