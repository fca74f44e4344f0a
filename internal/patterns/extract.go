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

// Package patterns is the error-log pattern extractor: normalizes volatile
// tokens out of raw log lines, groups them into fingerprinted patterns,
// classifies severity, and returns a capped, ranked list.
package patterns

import (
	"bufio"
	"bytes"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/skysql-oss/dbdiag-agents/internal/models"
)

const defaultMaxPatterns = 20

var (
	containerPreamble = regexp.MustCompile(`^\S+T\S+\s+(stdout|stderr)\s+\S*\s*`)
	timestampPattern  = regexp.MustCompile(
		`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	pidPattern         = regexp.MustCompile(`(?i)\b(pid|tid)[=:]\s*\d+\b`)
	parenIDPattern     = regexp.MustCompile(`(?i)\((?:connection|conn|thread)[^()]*\d+[^()]*\)`)
	longNumPattern     = regexp.MustCompile(`\b\d{4,}\b`)
	quotedSchemaTable  = regexp.MustCompile("`[^`]+`\\.`[^`]+`")
	schemaTablePattern = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)
	whitespaceRun      = regexp.MustCompile(`\s+`)
)

// nonSchemaTokens are dotted left-hand sides that show up in log prose
// but never name a schema: abbreviations, domain labels, runtime names.
var nonSchemaTokens = map[string]bool{
	"e": true, "g": true, "i": true, "eg": true, "ie": true, "etc": true,
	"vs": true, "www": true, "com": true, "org": true, "net": true,
	"io": true, "js": true, "node": true,
}

// Extract consumes log text and returns up to maxPatterns patterns,
// ranked by severity, then count, then recency of last occurrence.
func Extract(text []byte, maxPatterns int) []models.ErrorPattern {
	if maxPatterns <= 0 {
		maxPatterns = defaultMaxPatterns
	}

	groups := make(map[string]*models.ErrorPattern)
	var lastTimestamp time.Time
	haveLastTimestamp := false

	scanner := bufio.NewScanner(bytes.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		ts, hasTS := parseTimestamp(line)
		if hasTS {
			lastTimestamp = ts
			haveLastTimestamp = true
		}

		fingerprint := normalize(line)
		severity := classifySeverity(line)

		p, ok := groups[fingerprint]
		if !ok {
			p = &models.ErrorPattern{
				Fingerprint: fingerprint,
				Severity:    severity,
				Sample:      line,
			}
			if hasTS {
				p.FirstSeen = ts
			}
			groups[fingerprint] = p
		}
		p.Count++
		if hasTS {
			p.LastSeen = ts
		} else if haveLastTimestamp {
			p.LastSeen = lastTimestamp
		}
	}

	list := make([]models.ErrorPattern, 0, len(groups))
	for _, p := range groups {
		list = append(list, *p)
	}

	sort.Slice(list, func(i, j int) bool {
		si, sj := severityPriority(list[i].Severity), severityPriority(list[j].Severity)
		if si != sj {
			return si > sj
		}
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].LastSeen.After(list[j].LastSeen)
	})

	if len(list) > maxPatterns {
		list = list[:maxPatterns]
	}
	return list
}

// normalize applies the ordered normalization pipeline to a line and
// returns the fingerprint. The steps must stay in this order: stripping
// the container preamble first keeps its timestamp from being rewritten
// as part of the message, and numeric-run replacement must follow the
// pid/connection-id replacements that consume their own digits.
func normalize(line string) string {
	s := containerPreamble.ReplaceAllString(line, "")
	s = timestampPattern.ReplaceAllString(s, "<TS>")
	s = pidPattern.ReplaceAllString(s, "<PID>")
	s = parenIDPattern.ReplaceAllString(s, "(<ID>)")
	s = longNumPattern.ReplaceAllString(s, "<NUM>")
	s = replaceSchemaTables(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// replaceSchemaTables rewrites schema.table pairs to <DB>.<TBL>.
// Backtick-quoted pairs are always schema references. A bare pair is
// rewritten only when the left-hand side looks schema-ish and the pair
// is not embedded in a longer dotted chain (com.mysql.jdbc, Node.js
// release strings); digit-led versions never match the identifier shape
// in the first place.
func replaceSchemaTables(s string) string {
	s = quotedSchemaTable.ReplaceAllString(s, "<DB>.<TBL>")

	locs := schemaTablePattern.FindAllStringSubmatchIndex(s, -1)
	if locs == nil {
		return s
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		lhs := s[loc[2]:loc[3]]
		if !schemaish(lhs) || partOfDottedRun(s, start, end) {
			continue
		}
		sb.WriteString(s[last:start])
		sb.WriteString("<DB>.<TBL>")
		last = end
	}
	sb.WriteString(s[last:])
	return sb.String()
}

// schemaish accepts the identifier shape MariaDB/MySQL schemas use in
// practice: lowercase_with_underscores, at least two characters, and
// not a known prose abbreviation. CamelCase and ALLCAPS left sides are
// class paths or prose, not schema names.
func schemaish(lhs string) bool {
	if len(lhs) < 2 || nonSchemaTokens[strings.ToLower(lhs)] {
		return false
	}
	for _, r := range lhs {
		if r >= 'A' && r <= 'Z' {
			return false
		}
	}
	return true
}

// partOfDottedRun reports a pair with a further dot on either side:
// schema.table is exactly two parts, so a longer chain is a package,
// domain, or version string.
func partOfDottedRun(s string, start, end int) bool {
	if start > 0 && s[start-1] == '.' {
		return true
	}
	return end < len(s) && s[end] == '.'
}

func classifySeverity(line string) models.Severity {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "[error]") || strings.Contains(lower, " error "):
		return models.SeverityError
	case strings.Contains(lower, "[warning]") || strings.Contains(lower, "warn"):
		return models.SeverityWarning
	case strings.Contains(lower, "[note]") || strings.Contains(lower, "[info]"):
		return models.SeverityInfo
	default:
		return models.SeverityUnknown
	}
}

func severityPriority(s models.Severity) int {
	switch s {
	case models.SeverityError:
		return 3
	case models.SeverityWarning:
		return 2
	case models.SeverityInfo:
		return 1
	default:
		return 0
	}
}

var knownTimeLayouts = []string{
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"060102 15:04:05",
}

func parseTimestamp(line string) (time.Time, bool) {
	m := timestampPattern.FindString(line)
	if m == "" {
		return time.Time{}, false
	}
	for _, layout := range knownTimeLayouts {
		if t, err := time.Parse(layout, m); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
