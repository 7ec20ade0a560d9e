package drive

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/liliang-cn/storerouter/internal/domain"
)

type linkPattern struct {
	re   *regexp2.Regexp
	kind domain.DriveLinkKind
}

var linkPatterns = []linkPattern{
	{regexp2.MustCompile(`docs\.google\.com/document/d/([a-zA-Z0-9_-]+)`, regexp2.None), domain.DriveDocument},
	{regexp2.MustCompile(`docs\.google\.com/spreadsheets/d/([a-zA-Z0-9_-]+)`, regexp2.None), domain.DriveSpreadsheet},
	{regexp2.MustCompile(`docs\.google\.com/presentation/d/([a-zA-Z0-9_-]+)`, regexp2.None), domain.DrivePresentation},
	{regexp2.MustCompile(`drive\.google\.com/file/d/([a-zA-Z0-9_-]+)`, regexp2.None), domain.DriveFile},
	{regexp2.MustCompile(`drive\.google\.com/open\?id=([a-zA-Z0-9_-]+)`, regexp2.None), domain.DriveFile},
	{regexp2.MustCompile(`drive\.google\.com/drive/folders/([a-zA-Z0-9_-]+)`, regexp2.None), domain.DriveFolder},
	{regexp2.MustCompile(`drive\.google\.com/drive/u/\d+/folders/([a-zA-Z0-9_-]+)`, regexp2.None), domain.DriveFolder},
}

// URLs end on a word character, slash, '=' or '-'; the lookbehind keeps
// closing punctuation out of the match.
var urlRe = regexp2.MustCompile(`https?://[^\s<>"']+(?<=[a-zA-Z0-9_/=-])`, regexp2.None)

// ParseLink identifies a single drive URL
func ParseLink(url string) (domain.DriveLink, bool) {
	for _, p := range linkPatterns {
		m, err := p.re.FindStringMatch(url)
		if err != nil || m == nil {
			continue
		}
		return domain.DriveLink{URL: url, ID: m.GroupByNumber(1).String(), Kind: p.kind}, true
	}
	return domain.DriveLink{}, false
}

// ExtractLinks finds drive links in text, de-duplicated by id and capped at limit
func ExtractLinks(text string, limit int) []domain.DriveLink {
	var links []domain.DriveLink
	seen := make(map[string]bool)

	m, err := urlRe.FindStringMatch(text)
	for err == nil && m != nil {
		if link, ok := ParseLink(strings.TrimRight(m.String(), ",;:!?)")); ok && !seen[link.ID] {
			seen[link.ID] = true
			links = append(links, link)
		}
		m, err = urlRe.FindNextMatch(m)
	}

	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links
}

// HasFolderLink reports whether text contains a drive folder link
func HasFolderLink(text string) bool {
	for _, link := range ExtractLinks(text, 0) {
		if link.Kind == domain.DriveFolder {
			return true
		}
	}
	return false
}

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// SanitizeFilename replaces characters that are unsafe in file names and
// caps the length at 200 runes.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(unsafeChars.Replace(name))
	if r := []rune(name); len(r) > 200 {
		name = string(r[:200])
	}
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return name
}
