package runtime

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// minItemRunes is the shortest list item kept by the section parsers.
// Anything at or under this length is treated as formatting noise.
const minItemRunes = 5

// parsePlan extracts the SUBTASKS and DATA_PLAN sections from a
// planning response. Section headers match case-insensitively; the data
// plan may start on the header line itself and spans every following
// line until the next section.
func parsePlan(response string) ([]string, string) {
	var subtasks []string
	var dataPlan strings.Builder
	inSubtasks, inDataPlan := false, false

	for _, raw := range strings.Split(strings.TrimSpace(response), "\n") {
		line := strings.TrimSpace(raw)
		upper := strings.ToUpper(line)

		if strings.HasPrefix(upper, "SUBTASKS:") {
			inSubtasks, inDataPlan = true, false
			continue
		}
		if strings.HasPrefix(upper, "DATA_PLAN:") || strings.HasPrefix(upper, "DATA PLAN:") {
			inDataPlan, inSubtasks = true, false
			if _, after, found := strings.Cut(line, ":"); found {
				if after = strings.TrimSpace(after); after != "" {
					dataPlan.WriteString(after + " ")
				}
			}
			continue
		}

		if inSubtasks && line != "" {
			if item, ok := listItem(line); ok {
				subtasks = append(subtasks, item)
			}
		} else if inDataPlan && line != "" {
			dataPlan.WriteString(line + " ")
		}
	}
	return subtasks, strings.TrimSpace(dataPlan.String())
}

// parseComposition extracts the ANSWER and SUGGESTIONS sections from a
// composing response. Answer lines are joined with single spaces; the
// answer may start on the header line itself.
func parseComposition(response string) (string, []string) {
	var answerLines, suggestions []string
	inAnswer, inSuggestions := false, false

	for _, raw := range strings.Split(strings.TrimSpace(response), "\n") {
		line := strings.TrimSpace(raw)
		upper := strings.ToUpper(line)

		if strings.HasPrefix(upper, "ANSWER:") {
			inAnswer, inSuggestions = true, false
			if _, after, found := strings.Cut(line, ":"); found {
				if after = strings.TrimSpace(after); after != "" {
					answerLines = append(answerLines, after)
				}
			}
			continue
		}
		if strings.HasPrefix(upper, "SUGGESTIONS:") {
			inSuggestions, inAnswer = true, false
			continue
		}

		if inAnswer && line != "" {
			answerLines = append(answerLines, line)
		} else if inSuggestions && line != "" {
			if item, ok := listItem(line); ok {
				suggestions = append(suggestions, item)
			}
		}
	}
	return strings.TrimSpace(strings.Join(answerLines, " ")), suggestions
}

// listItem extracts the text of a numbered or bulleted line. Lines with
// a period anywhere are cut at the first period; marker-only lines and
// items at or under minItemRunes runes are dropped.
func listItem(line string) (string, bool) {
	first, _ := utf8.DecodeRuneInString(line)
	if !unicode.IsDigit(first) && !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "•") {
		return "", false
	}

	var item string
	if strings.Contains(line, ".") {
		_, after, _ := strings.Cut(line, ".")
		item = strings.TrimSpace(after)
	} else {
		item = strings.TrimSpace(strings.TrimLeft(line, "0123456789.-•"))
	}

	if utf8.RuneCountInString(item) > minItemRunes {
		return item, true
	}
	return "", false
}

// firstRunes returns at most n leading runes of s.
func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
