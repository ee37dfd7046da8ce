package dbconn

import (
	"strings"

	"github.com/lib/pq"
)

// QuoteIdent quotes an identifier for the given driver's dialect.
func QuoteIdent(driver, ident string) string {
	if driver == "postgres" {
		return pq.QuoteIdentifier(ident)
	}
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// QuoteIdents quotes a list of identifiers and joins them with commas.
func QuoteIdents(driver string, idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = QuoteIdent(driver, id)
	}
	return strings.Join(quoted, ", ")
}
