package source

import "strings"

// QuoteIdent bracket-quotes a SQL Server identifier. Every identifier is
// quoted unconditionally, which is always safe and sidesteps needing a
// reserved-word list: brackets are required for reserved words and
// whitespace-containing names, and harmless for everything else.
func QuoteIdent(name string) string {
	escaped := strings.ReplaceAll(name, "]", "]]")
	return "[" + escaped + "]"
}

// QuoteQualified bracket-quotes a schema.table pair, defaulting the schema
// to "dbo" when none is configured.
func QuoteQualified(schema, table string) string {
	if schema == "" {
		schema = "dbo"
	}
	return QuoteIdent(schema) + "." + QuoteIdent(table)
}
