// Copyright © 2025 DBDiag Agents Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package guardrails provides pre-checks on tool inputs and post-checks
// on agent outputs, enforced without ever terminating the enclosing
// request.
package guardrails

import (
	"regexp"
	"strings"

	"github.com/skysql-oss/dbdiag-agents/internal/common/errs"
)

var (
	ddlDMLPattern = regexp.MustCompile(
		`(?i)\b(INSERT|UPDATE|DELETE|DROP|TRUNCATE|ALTER|CREATE|GRANT|REVOKE|REPLACE|LOAD)\b`)
	commentEscapePattern = regexp.MustCompile(`(?i)(/\*.*?\*/|--\s|#)`)
)

// CheckInput applies the input guardrail to a single string argument of
// a reads-db tool. Bound parameters are never passed here; only raw
// SQL-like text arguments are subject to the check.
func CheckInput(value string) errs.DBDiagError {
	return checkInput(value, true)
}

// CheckInputPreValidatedShape applies the input guardrail to a SQL
// argument whose leading-keyword shape the DB gateway validates anyway
// (run_readonly / run_readonly_probe's "sql" parameter): it skips the
// redundant leading DDL/DML keyword check so a disallowed shape is
// classified as UnsafeQuery by the gateway rather than InputBlocked
// here, while still catching stacked statements and comment-escape
// smuggling that a leading-keyword check alone would miss.
func CheckInputPreValidatedShape(value string) errs.DBDiagError {
	return checkInput(value, false)
}

func checkInput(value string, checkLeadingKeyword bool) errs.DBDiagError {
	if checkLeadingKeyword && ddlDMLPattern.MatchString(firstStatementKeyword(value)) {
		return errs.New(errs.KindInputBlocked, "argument contains a DDL/DML keyword in statement position")
	}
	if hasStackedStatements(value) {
		return errs.New(errs.KindInputBlocked, "argument contains stacked statements")
	}
	if hasSuspiciousCommentEscape(value) {
		return errs.New(errs.KindInputBlocked, "argument contains a comment-escape pattern")
	}
	return nil
}

// firstStatementKeyword returns the leading keyword-ish token so the
// DDL/DML check only fires on statement position, not on values that
// happen to contain one of these words inside a string literal.
func firstStatementKeyword(value string) string {
	trimmed := strings.TrimSpace(value)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// hasStackedStatements reports a `;` followed by further non-whitespace
// content.
func hasStackedStatements(value string) bool {
	idx := strings.IndexByte(value, ';')
	if idx < 0 {
		return false
	}
	return strings.TrimSpace(value[idx+1:]) != ""
}

// hasSuspiciousCommentEscape flags a comment marker that is not at the
// very start of the trimmed string (a leading comment is tolerated by
// the shape validator in dbgateway; a comment appearing mid-statement is
// commonly used to smuggle a second clause past naive keyword checks).
func hasSuspiciousCommentEscape(value string) bool {
	trimmed := strings.TrimSpace(value)
	for _, loc := range commentEscapePattern.FindAllStringIndex(trimmed, -1) {
		if loc[0] > 0 {
			return true
		}
	}
	return false
}
