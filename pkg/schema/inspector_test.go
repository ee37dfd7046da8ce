package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
)

const (
	tablesQ  = "SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	columnsQ = "SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION"
	indexesQ = "SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE, INDEX_TYPE FROM INFORMATION_SCHEMA.STATISTICS WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY' ORDER BY INDEX_NAME, SEQ_IN_INDEX"
	fksQ     = `SELECT kcu.CONSTRAINT_NAME, kcu.COLUMN_NAME, kcu.REFERENCED_TABLE_NAME, kcu.REFERENCED_COLUMN_NAME, rc.DELETE_RULE, rc.UPDATE_RULE
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
JOIN INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc ON rc.CONSTRAINT_SCHEMA = kcu.CONSTRAINT_SCHEMA AND rc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
WHERE kcu.TABLE_SCHEMA = ? AND kcu.TABLE_NAME = ? AND kcu.REFERENCED_TABLE_NAME IS NOT NULL
ORDER BY kcu.CONSTRAINT_NAME, kcu.ORDINAL_POSITION`
	viewsQ    = "SELECT TABLE_NAME, VIEW_DEFINITION FROM INFORMATION_SCHEMA.VIEWS WHERE TABLE_SCHEMA = ? ORDER BY TABLE_NAME"
	routinesQ = "SELECT ROUTINE_NAME, ROUTINE_TYPE, ROUTINE_DEFINITION FROM INFORMATION_SCHEMA.ROUTINES WHERE ROUTINE_SCHEMA = ? ORDER BY ROUTINE_NAME"
	triggersQ = "SELECT TRIGGER_NAME, ACTION_TIMING, EVENT_MANIPULATION, EVENT_OBJECT_TABLE, ACTION_STATEMENT FROM INFORMATION_SCHEMA.TRIGGERS WHERE TRIGGER_SCHEMA = ? ORDER BY TRIGGER_NAME"
)

func TestInspectMySQL(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery(tablesQ).WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).AddRow("users"))
	mock.ExpectQuery(columnsQ).WithArgs("app", "users").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "COLUMN_TYPE", "IS_NULLABLE", "COLUMN_DEFAULT", "EXTRA"}).
			AddRow("id", "int", "NO", nil, "auto_increment").
			AddRow("email", "varchar(255)", "YES", "''", ""))
	mock.ExpectQuery(indexesQ).WithArgs("app", "users").
		WillReturnRows(sqlmock.NewRows([]string{"INDEX_NAME", "COLUMN_NAME", "NON_UNIQUE", "INDEX_TYPE"}).
			AddRow("ix_email", "email", 0, "BTREE"))
	mock.ExpectQuery(fksQ).WithArgs("app", "users").
		WillReturnRows(sqlmock.NewRows([]string{"CONSTRAINT_NAME", "COLUMN_NAME", "REFERENCED_TABLE_NAME", "REFERENCED_COLUMN_NAME", "DELETE_RULE", "UPDATE_RULE"}).
			AddRow("fk_org", "org_id", "orgs", "id", "CASCADE", "RESTRICT"))
	mock.ExpectQuery("SHOW CREATE TABLE `users`").
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Create Table"}).
			AddRow("users", "CREATE TABLE `users` (`id` int NOT NULL)"))
	mock.ExpectQuery(viewsQ).WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME", "VIEW_DEFINITION"}).
			AddRow("v_users", "select `id` from `users`;"))
	mock.ExpectQuery(routinesQ).WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"ROUTINE_NAME", "ROUTINE_TYPE", "ROUTINE_DEFINITION"}).
			AddRow("do_sync", "PROCEDURE", "BEGIN SELECT 1; END").
			AddRow("fn_add", "FUNCTION", "RETURN 1"))
	mock.ExpectQuery(triggersQ).WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"TRIGGER_NAME", "ACTION_TIMING", "EVENT_MANIPULATION", "EVENT_OBJECT_TABLE", "ACTION_STATEMENT"}).
			AddRow("trg_audit", "AFTER", "INSERT", "users", "SET @x = 1"))

	snap, err := NewInspector(db, "mysql", "app").Inspect(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	users, ok := snap.Tables["users"]
	if !ok {
		t.Fatal("users table missing from snapshot")
	}
	empty := "''"
	wantCols := []Column{
		{Name: "id", DataType: "int", Nullable: false, Extra: "auto_increment"},
		{Name: "email", DataType: "varchar(255)", Nullable: true, Default: &empty},
	}
	if diff := cmp.Diff(wantCols, users.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	wantIdx := []Index{{Name: "ix_email", Columns: []string{"email"}, Unique: true, Type: "BTREE"}}
	if diff := cmp.Diff(wantIdx, users.Indexes); diff != "" {
		t.Errorf("indexes mismatch (-want +got):\n%s", diff)
	}
	wantFKs := []ForeignKey{{
		Name: "fk_org", Columns: []string{"org_id"},
		ReferencedTable: "orgs", ReferencedColumns: []string{"id"},
		OnDelete: "CASCADE", OnUpdate: "RESTRICT",
	}}
	if diff := cmp.Diff(wantFKs, users.ForeignKeys); diff != "" {
		t.Errorf("foreign keys mismatch (-want +got):\n%s", diff)
	}
	if users.CreateSQL != "CREATE TABLE `users` (`id` int NOT NULL)" {
		t.Errorf("create sql = %q", users.CreateSQL)
	}

	if got := snap.Views["v_users"].Definition; got != "CREATE VIEW `v_users` AS select `id` from `users`" {
		t.Errorf("view definition = %q", got)
	}
	if _, ok := snap.Routines["do_sync"]; !ok {
		t.Error("procedure missing from routines")
	}
	if _, ok := snap.Functions["fn_add"]; !ok {
		t.Error("function missing from functions")
	}
	if got := snap.Triggers["trg_audit"].Definition; got != "CREATE TRIGGER `trg_audit` AFTER INSERT ON `users` FOR EACH ROW SET @x = 1" {
		t.Errorf("trigger definition = %q", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestInspectPropagatesCatalogErrors(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	boom := errors.New("access denied")
	mock.ExpectQuery(tablesQ).WithArgs("app").WillReturnError(boom)

	if _, err := NewInspector(db, "mysql", "app").Inspect(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped catalog error", err)
	}
}

func TestParsePgIndexDef(t *testing.T) {
	ix := parsePgIndexDef("ix_users_email", `CREATE UNIQUE INDEX ix_users_email ON public.users USING btree (email, "tenantId")`)
	want := Index{Name: "ix_users_email", Columns: []string{"email", "tenantId"}, Unique: true, Type: "btree"}
	if diff := cmp.Diff(want, ix); diff != "" {
		t.Errorf("index mismatch (-want +got):\n%s", diff)
	}
}
