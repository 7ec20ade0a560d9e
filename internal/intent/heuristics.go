// Package intent recognizes command-like requests in free text without a model.
//
// The rules are a safety net for when the classifier is unavailable or unsure.
// They are evaluated in a fixed order and the first match wins.
package intent

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/liliang-cn/storerouter/internal/domain"
)

const storeWord = `(?:тендер[а-я]*|store|баз[ау]|проект)?`

// regexp2 is used for .NET-style \b, which treats Cyrillic letters as word characters.
var (
	listRe = regexp2.MustCompile(
		`\b(список|перечисли|покажи|какие|какие есть|list)\b.*\b(тендер|тендеры|тендеров|тендерах|store|stores|баз|базы|проект|проекты)\b`,
		regexp2.IgnoreCase)
	statusRe = regexp2.MustCompile(`\b(статус|провер(ь|ка)|состояние|status)\b`, regexp2.IgnoreCase)
	clearRe  = regexp2.MustCompile(
		`\b(очист(и|ить)|сброс(ь|ить)|clear|reset)\b.*\b(истор|памят|контекст|history|memory|context)`,
		regexp2.IgnoreCase)
	exportRe = regexp2.MustCompile(
		`\b(экспорт|выгруз|сохрани|сохранить|export|сделай файл|сделай pdf|сделай docx)`,
		regexp2.IgnoreCase)
	pdfRe  = regexp2.MustCompile(`\b(pdf|пдф)\b`, regexp2.IgnoreCase)
	docxRe = regexp2.MustCompile(`\b(docx|докх|док|word|ворд)\b`, regexp2.IgnoreCase)

	selectRe = regexp2.MustCompile(
		`\b(выбери|выбрать|используй|переключи(?:сь)?|работай с|сделай активным|установи|select|switch to)\b\s*(?:на\s+)?`+storeWord+`\s*(.+)`,
		regexp2.IgnoreCase)
	renameRe = regexp2.MustCompile(
		`\b(переименуй|переименовать|rename)\b\s*`+storeWord+`\s*(.+)`,
		regexp2.IgnoreCase)
	renameConnectiveRe = regexp2.MustCompile(`^(.+?)\s+(?:в|на|to|into)\s+(.+)$`, regexp2.IgnoreCase)
	deleteRe           = regexp2.MustCompile(
		`\b(удали|удалить|delete|снеси)\b\s*`+storeWord+`\s*(.+)`,
		regexp2.IgnoreCase)

	trailingPunct = regexp2.MustCompile(`[\s,.!?;:]+$`, regexp2.None)
)

var renameSeparators = []string{"->", "→", "=>", "|"}

// Infer maps text to an action and its arguments. It returns ActionNone when
// no rule matches.
func Infer(text string) (domain.Action, domain.ActionArgs) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ActionNone, domain.ActionArgs{}
	}
	lower := strings.ToLower(text)

	if matches(listRe, lower) {
		return domain.ActionListStores, domain.ActionArgs{}
	}
	if matches(statusRe, lower) {
		return domain.ActionStatus, domain.ActionArgs{}
	}
	if matches(clearRe, lower) {
		return domain.ActionClearMemory, domain.ActionArgs{}
	}
	if matches(exportRe, lower) {
		return domain.ActionExport, domain.ActionArgs{Format: exportFormat(lower)}
	}
	if name := group(selectRe, text, 2); name != "" {
		if name = CleanStoreName(name); name != "" {
			return domain.ActionSelectStore, domain.ActionArgs{StoreName: name}
		}
	}
	if rest := group(renameRe, text, 2); rest != "" {
		if oldName, newName, ok := SplitRename(rest); ok {
			return domain.ActionRenameStore, domain.ActionArgs{OldName: oldName, NewName: newName}
		}
	}
	if name := group(deleteRe, text, 2); name != "" {
		if name = CleanStoreName(name); name != "" {
			return domain.ActionDeleteStore, domain.ActionArgs{StoreName: name}
		}
	}
	return domain.ActionNone, domain.ActionArgs{}
}

// ExportFormat returns "pdf", "docx" or "" for the format mentioned in text.
func ExportFormat(text string) string {
	return exportFormat(strings.ToLower(text))
}

func exportFormat(lower string) string {
	switch {
	case matches(pdfRe, lower):
		return "pdf"
	case matches(docxRe, lower):
		return "docx"
	}
	return ""
}

// SplitRename splits "old -> new" or "old to new" into two cleaned store names.
func SplitRename(rest string) (string, string, bool) {
	for _, sep := range renameSeparators {
		if oldName, newName, found := strings.Cut(rest, sep); found {
			return cleanPair(oldName, newName)
		}
	}
	m, err := renameConnectiveRe.FindStringMatch(strings.TrimSpace(rest))
	if err != nil || m == nil {
		return "", "", false
	}
	return cleanPair(m.GroupByNumber(1).String(), m.GroupByNumber(2).String())
}

func cleanPair(oldName, newName string) (string, string, bool) {
	oldName, newName = CleanStoreName(oldName), CleanStoreName(newName)
	return oldName, newName, oldName != "" && newName != ""
}

// CleanStoreName strips quotes and trailing punctuation from a typed store name.
func CleanStoreName(name string) string {
	name = strings.Trim(strings.TrimSpace(name), "\"'`«»")
	if out, err := trailingPunct.Replace(name, "", -1, -1); err == nil {
		name = out
	}
	return strings.TrimSpace(strings.Trim(name, "\"'`«»"))
}

func matches(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

func group(re *regexp2.Regexp, s string, n int) string {
	m, err := re.FindStringMatch(s)
	if err != nil || m == nil {
		return ""
	}
	return strings.TrimSpace(m.GroupByNumber(n).String())
}
