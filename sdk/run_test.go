package sdk

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"github.com/dbrepl/dbrepl/pkg/config"
)

func baseConfig() *config.Config {
	c := &config.Config{}
	c.Source.Driver = "mysql"
	c.Source.Host = "src"
	c.Source.Database = "app"
	c.Target.Driver = "mysql"
	c.Target.Host = "dst"
	c.Target.Database = "app"
	c.Mode = config.ModeFull
	c.BatchSize = 100
	return c
}

func TestRunRejectsIncrementalMode(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = config.ModeIncremental

	res, err := New(ServiceConfig{}).Run(context.Background(), cfg, nil)
	if !errors.Is(err, ErrIncrementalNotSupported) {
		t.Fatalf("err = %v, want ErrIncrementalNotSupported", err)
	}
	if res.Success {
		t.Error("result reported success")
	}
	if res.RunID == "" {
		t.Error("run ID missing")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.BatchSize = -1

	res, err := New(ServiceConfig{}).Run(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	if res.ErrorMessage == "" {
		t.Error("error message missing")
	}
}

func TestListTables(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME").
		WithArgs("app").
		WillReturnRows(sqlmock.NewRows([]string{"TABLE_NAME"}).
			AddRow("users").AddRow("orders"))

	cfg := baseConfig()
	svc := New(ServiceConfig{}).(*service)
	tables, err := svc.listTables(context.Background(), db, cfg.Source)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"orders", "users"}, tables); diff != "" {
		t.Errorf("tables mismatch (-want +got):\n%s", diff)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	s := NewScheduler(New(ServiceConfig{}), baseConfig(), nil)
	if err := s.Start("not a cron expression"); err == nil {
		t.Error("bad cron expression accepted")
	}
	s.Stop()
}
