// Package mention extracts @nickname mentions from message bodies.
package mention

import "regexp"

// NicknamePattern is the character set allowed in nicknames: ASCII word
// characters, Hangul syllables and hyphen.
const NicknamePattern = `[\w가-힣-]+`

var (
	mentionRe  = regexp.MustCompile(`@(` + NicknamePattern + `)`)
	nicknameRe = regexp.MustCompile(`^` + NicknamePattern + `$`)
)

// ValidNickname reports whether s consists only of nickname characters.
func ValidNickname(s string) bool {
	return nicknameRe.MatchString(s)
}

// Candidates returns the distinct raw @mentions in body, in order of first appearance.
func Candidates(body string) []string {
	matches := mentionRe.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Parse returns the mentions in body that name a current member.
// Mentions of non-members are dropped silently.
func Parse(body string, members []string) []string {
	candidates := Candidates(body)
	if len(candidates) == 0 {
		return []string{}
	}
	present := make(map[string]struct{}, len(members))
	for _, m := range members {
		present[m] = struct{}{}
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := present[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
