package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// Rejection rule names, used as reason prefixes and metric labels.
const (
	RuleOperationMismatch   = "operation_mismatch"
	RuleForbiddenStatement  = "forbidden_statement"
	RuleUnconditionalDelete = "unconditional_delete"
	RuleUnconditionalUpdate = "unconditional_update"
)

// Rejection is the outcome of a failed validation. A statement is atomically
// accepted or rejected; there is no partial validity.
type Rejection struct {
	Rule   string
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Keyword pairs that are never allowed to execute regardless of the declared
// operation. This is a textual deny-list, not a parsed-AST safety proof: a
// sufficiently disguised statement can slip through, and callers must not
// treat it as a security boundary.
var forbiddenKeywords = []string{
	"DROP TABLE",
	"DROP DATABASE",
	"TRUNCATE",
	"ALTER TABLE",
	"CREATE TABLE",
}

var (
	deleteTautologyRe = regexp.MustCompile(`DELETE FROM .*WHERE 1 ?= ?1`)
	updateTautologyRe = regexp.MustCompile(`UPDATE .* SET .*WHERE 1 ?= ?1`)
)

// Validate checks one statement's SQL text against the declared operation and
// the deny-list. It returns nil when the statement may proceed and a
// *Rejection naming the violated rule otherwise. Validation is pure: it never
// touches the database, and it leaves SQL and parameters untouched.
func Validate(sqlText, operation string) error {
	upper := strings.ToUpper(strings.TrimSpace(sqlText))
	op := strings.ToUpper(strings.TrimSpace(operation))

	fields := strings.Fields(upper)
	if len(fields) == 0 {
		return &Rejection{Rule: RuleOperationMismatch, Reason: "operation mismatch: statement is empty"}
	}
	if fields[0] != op {
		return &Rejection{
			Rule:   RuleOperationMismatch,
			Reason: fmt.Sprintf("operation mismatch: statement begins with %s but declares %s", fields[0], op),
		}
	}

	// Scan a scrubbed rendition so keywords hidden by spacing, comments, or
	// absence of string literals cannot dodge the check, while literal text
	// like an inserted 'DROP TABLE' message does not trip it.
	scrubbed := collapseWhitespace(stripLiteralsAndComments(upper))
	for _, keyword := range forbiddenKeywords {
		if strings.Contains(scrubbed, keyword) {
			return &Rejection{
				Rule:   RuleForbiddenStatement,
				Reason: fmt.Sprintf("forbidden statement: %s is not allowed", keyword),
			}
		}
	}
	if deleteTautologyRe.MatchString(scrubbed) {
		return &Rejection{
			Rule:   RuleUnconditionalDelete,
			Reason: "unconditional DELETE: tautological WHERE clause deletes every row",
		}
	}
	if updateTautologyRe.MatchString(scrubbed) {
		return &Rejection{
			Rule:   RuleUnconditionalUpdate,
			Reason: "unconditional UPDATE: tautological WHERE clause updates every row",
		}
	}
	return nil
}

// stripLiteralsAndComments blanks out single- and double-quoted literals,
// line comments, and block comments so keyword scans only see executable SQL.
func stripLiteralsAndComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		switch {
		case runes[i] == '\'' || runes[i] == '"':
			quote := runes[i]
			b.WriteRune(' ')
			for i++; i < len(runes); i++ {
				if runes[i] != quote {
					continue
				}
				// Doubled quote escapes the quote inside the literal.
				if i+1 < len(runes) && runes[i+1] == quote {
					i++
					continue
				}
				break
			}
		case runes[i] == '-' && i+1 < len(runes) && runes[i+1] == '-':
			b.WriteRune(' ')
			for i += 2; i < len(runes) && runes[i] != '\n'; i++ {
			}
		case runes[i] == '/' && i+1 < len(runes) && runes[i+1] == '*':
			b.WriteRune(' ')
			for i += 2; i+1 < len(runes); i++ {
				if runes[i] == '*' && runes[i+1] == '/' {
					i++
					break
				}
			}
		default:
			b.WriteRune(runes[i])
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
