package script

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func texts(stmts []Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.Text
	}
	return out
}

func TestSplitBasic(t *testing.T) {
	got := texts(Split("SELECT 1;\nSELECT 2;"))
	want := []string{"SELECT 1;", "SELECT 2;"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("statements (-want +got):\n%s", diff)
	}
}

func TestSplitTerminatorInComment(t *testing.T) {
	got := Split("SELECT 1; -- comment ; still\nSELECT 2;")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(got), texts(got))
	}
	if got[0].Text != "SELECT 1;" {
		t.Errorf("first = %q", got[0].Text)
	}
	if got[1].Text != "-- comment ; still\nSELECT 2;" {
		t.Errorf("second = %q", got[1].Text)
	}
}

func TestSplitTerminatorInString(t *testing.T) {
	got := Split(`INSERT INTO t VALUES ('a;b');SELECT 1;`)
	want := []string{`INSERT INTO t VALUES ('a;b');`, "SELECT 1;"}
	if diff := cmp.Diff(want, texts(got)); diff != "" {
		t.Fatalf("statements (-want +got):\n%s", diff)
	}
}

func TestSplitEscapedQuote(t *testing.T) {
	got := Split(`SELECT 'it''s; fine';SELECT '\'';`)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(got), texts(got))
	}
}

func TestSplitDelimiterDirective(t *testing.T) {
	src := "DELIMITER $$\nCREATE PROCEDURE p()\nBEGIN\n  SELECT 1;\n  SELECT 2;\nEND$$\nDELIMITER ;\nSELECT 3;"
	got := Split(src)
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(got), texts(got))
	}
	if got[0].Terminator != "$$" {
		t.Errorf("terminator = %q", got[0].Terminator)
	}
	if got[0].Executable() != "CREATE PROCEDURE p()\nBEGIN\n  SELECT 1;\n  SELECT 2;\nEND" {
		t.Errorf("executable = %q", got[0].Executable())
	}
	if got[1].Text != "SELECT 3;" {
		t.Errorf("second = %q", got[1].Text)
	}
	for _, s := range got {
		if len(s.Text) >= 9 && s.Text[:9] == "DELIMITER" {
			t.Fatalf("directive leaked into statement: %q", s.Text)
		}
	}
}

func TestSplitTrailingBufferFlushed(t *testing.T) {
	got := Split("SELECT 1;\nSELECT 2")
	want := []string{"SELECT 1;", "SELECT 2"}
	if diff := cmp.Diff(want, texts(got)); diff != "" {
		t.Fatalf("statements (-want +got):\n%s", diff)
	}
}

func TestSplitKeepsCommentOnlyStatements(t *testing.T) {
	// Dropping comment-only statements is the caller's job.
	got := Split("-- just a note;\nSELECT 1;")
	if len(got) != 1 {
		t.Fatalf("got %v", texts(got))
	}
	if got[0].Text != "-- just a note;\nSELECT 1;" {
		t.Errorf("statement = %q", got[0].Text)
	}
}

func TestSplitEmptyStatementsSkipped(t *testing.T) {
	got := Split(";;  ;SELECT 1;")
	want := []string{"SELECT 1;"}
	if diff := cmp.Diff(want, texts(got)); diff != "" {
		t.Fatalf("statements (-want +got):\n%s", diff)
	}
}

func TestSplitDelimiterMidScriptNotAtLineStart(t *testing.T) {
	// The word inside an expression must not be treated as a directive.
	got := Split("SELECT 'delimiter $$' AS x;SELECT 1;")
	if len(got) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(got), texts(got))
	}
}
