package packager

import (
	"regexp"
	"strconv"
	"strings"
)

// SectionHeader is the ledger heading new bugs are inserted under.
const SectionHeader = "## 🐛 QA-Discovered Bugs"

var signatureRe = regexp.MustCompile(`Signature:\**\s*` + "`?" + `([0-9a-f]{12})`)

// ledger is a parsed view of the roadmap document.
type ledger struct {
	text       string
	maxID      int
	signatures map[string]bool
}

func parseLedger(text, prefix string) ledger {
	l := ledger{text: text, signatures: map[string]bool{}}
	idRe := regexp.MustCompile(`\b` + regexp.QuoteMeta(prefix) + `-(\d+)\b`)
	for _, m := range idRe.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > l.maxID {
			l.maxID = n
		}
	}
	for _, m := range signatureRe.FindAllStringSubmatch(text, -1) {
		l.signatures[m[1]] = true
	}
	return l
}

// insertEntries places blocks directly under the first line containing
// SectionHeader, creating the header once if no line does.
func insertEntries(doc string, blocks []string) string {
	if len(blocks) == 0 {
		return doc
	}
	body := strings.Join(blocks, "\n")
	lines := strings.Split(doc, "\n")

	for i, line := range lines {
		if strings.Contains(line, SectionHeader) {
			head := append(append([]string(nil), lines[:i+1]...), "")
			rest := lines[i+1:]
			for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
				rest = rest[1:]
			}
			return strings.Join(head, "\n") + "\n" + body + joinRest(rest)
		}
	}

	section := SectionHeader + "\n\n" + body
	if strings.TrimSpace(doc) == "" {
		return section
	}
	at := headingBlockEnd(lines)
	if at < 0 {
		return section + "\n" + doc
	}
	head := strings.Join(lines[:at], "\n")
	rest := lines[at:]
	for len(rest) > 0 && strings.TrimSpace(rest[0]) == "" {
		rest = rest[1:]
	}
	return head + "\n\n" + section + joinRest(rest)
}

// headingBlockEnd returns the index just past the first heading and the
// paragraph directly under it, or -1 if the document has no heading.
func headingBlockEnd(lines []string) int {
	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
			j++
		}
		for j < len(lines) && strings.TrimSpace(lines[j]) != "" && !strings.HasPrefix(strings.TrimSpace(lines[j]), "#") {
			j++
		}
		return j
	}
	return -1
}

func joinRest(rest []string) string {
	if len(rest) == 0 {
		return ""
	}
	return "\n" + strings.Join(rest, "\n")
}
