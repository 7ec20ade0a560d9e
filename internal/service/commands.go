package service

import (
	"context"
	"strings"

	"github.com/liliang-cn/storerouter/internal/domain"
	"github.com/liliang-cn/storerouter/internal/intent"
)

type command struct {
	Name string
	Args string
}

// parseCommand splits "/name@bot args" into its parts
func parseCommand(text string) (command, bool) {
	if !strings.HasPrefix(text, "/") {
		return command{}, false
	}
	head, args, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return command{}, false
	}
	return command{Name: strings.ToLower(head), Args: strings.TrimSpace(args)}, true
}

func (p *Pipeline) handleCommand(ctx context.Context, userID int64, cmd command) *domain.Reply {
	switch cmd.Name {
	case "start", "help":
		return p.actions.Dispatch(ctx, userID, domain.ActionHelp, domain.ActionArgs{})
	case "list":
		return p.actions.Dispatch(ctx, userID, domain.ActionListStores, domain.ActionArgs{})
	case "status":
		return p.actions.Dispatch(ctx, userID, domain.ActionStatus, domain.ActionArgs{})
	case "select":
		return p.actions.Dispatch(ctx, userID, domain.ActionSelectStore, domain.ActionArgs{StoreName: intent.CleanStoreName(cmd.Args)})
	case "unselect":
		return p.actions.Dispatch(ctx, userID, domain.ActionUnselect, domain.ActionArgs{})
	case "clear":
		return p.actions.Dispatch(ctx, userID, domain.ActionClearMemory, domain.ActionArgs{})
	case "cancel":
		return p.cancel(userID)
	case "ask":
		if cmd.Args == "" {
			return domain.Text("Usage: /ask <question>")
		}
		return p.answer(ctx, userID, cmd.Args, answerOptions{questionOnly: true})
	case "think":
		if cmd.Args == "" {
			return domain.Text("Usage: /think <question>")
		}
		return p.answer(ctx, userID, cmd.Args, answerOptions{questionOnly: true, forceComplex: true})
	case "export":
		return p.exportCommand(ctx, userID, cmd.Args)
	case "compare":
		a, b, topic, ok := parseCompare(cmd.Args)
		if !ok {
			return domain.Text("Usage: /compare <store A> | <store B> | <topic>")
		}
		return p.compareCommand(ctx, userID, a, b, topic)
	case "add":
		name, desc := splitPipe(cmd.Args)
		return p.actions.Dispatch(ctx, userID, domain.ActionAddStore, domain.ActionArgs{StoreName: name, Description: desc})
	case "delete":
		return p.actions.Dispatch(ctx, userID, domain.ActionDeleteStore, domain.ActionArgs{StoreName: intent.CleanStoreName(cmd.Args)})
	case "rename":
		oldName, newName, _ := intent.SplitRename(cmd.Args)
		return p.actions.Dispatch(ctx, userID, domain.ActionRenameStore, domain.ActionArgs{OldName: oldName, NewName: newName})
	case "setsync":
		name, urls := splitStoreURLs(cmd.Args)
		return p.actions.Dispatch(ctx, userID, domain.ActionSetSync, domain.ActionArgs{StoreName: name, URLs: urls})
	case "syncnow":
		return p.actions.Dispatch(ctx, userID, domain.ActionSyncNow, domain.ActionArgs{StoreName: intent.CleanStoreName(cmd.Args)})
	case "uploadurl":
		name, urls := splitStoreURLs(cmd.Args)
		return p.actions.Dispatch(ctx, userID, domain.ActionUploadURL, domain.ActionArgs{StoreName: name, URLs: urls})
	case "upload":
		return p.actions.Dispatch(ctx, userID, domain.ActionUploadFile, domain.ActionArgs{StoreName: intent.CleanStoreName(cmd.Args)})
	}
	return domain.Text("Unknown command. Send /help for the list of commands.")
}

func (p *Pipeline) cancel(userID int64) *domain.Reply {
	wizard := p.wizard.Cancel(userID)
	upload := p.sessions.ClearPendingUpload(userID)
	if wizard || upload {
		return domain.Text("Cancelled.")
	}
	return domain.Text("Nothing to cancel.")
}

// exportCommand handles "/export", "/export pdf" and "/export [format] <question>"
func (p *Pipeline) exportCommand(ctx context.Context, userID int64, args string) *domain.Reply {
	first, rest, _ := strings.Cut(args, " ")
	format := ""
	if f := strings.ToLower(first); f == "pdf" || f == "docx" {
		format, args = f, strings.TrimSpace(rest)
	}
	if args == "" {
		return p.actions.Dispatch(ctx, userID, domain.ActionExport, domain.ActionArgs{Format: format})
	}
	return p.answer(ctx, userID, args, answerOptions{questionOnly: true, export: true, exportFormat: format})
}

// parseCompare accepts "A | B | topic" or "A B topic words"
func parseCompare(args string) (string, string, string, bool) {
	if strings.Contains(args, "|") {
		parts := strings.SplitN(args, "|", 3)
		if len(parts) < 2 {
			return "", "", "", false
		}
		a, b := intent.CleanStoreName(parts[0]), intent.CleanStoreName(parts[1])
		topic := ""
		if len(parts) == 3 {
			topic = strings.TrimSpace(parts[2])
		}
		return a, b, topic, a != "" && b != ""
	}

	fields := strings.Fields(args)
	if len(fields) < 2 {
		return "", "", "", false
	}
	return intent.CleanStoreName(fields[0]), intent.CleanStoreName(fields[1]), strings.Join(fields[2:], " "), true
}

func splitPipe(args string) (string, string) {
	name, desc, _ := strings.Cut(args, "|")
	return intent.CleanStoreName(name), strings.TrimSpace(desc)
}

// splitStoreURLs reads "store | url url" or "store url url"
func splitStoreURLs(args string) (string, []string) {
	var nameParts []string
	var urls []string
	for _, f := range strings.Fields(strings.ReplaceAll(args, "|", " ")) {
		if strings.HasPrefix(f, "http://") || strings.HasPrefix(f, "https://") {
			urls = append(urls, strings.TrimRight(f, ",;"))
			continue
		}
		if len(urls) == 0 {
			nameParts = append(nameParts, f)
		}
	}
	return intent.CleanStoreName(strings.Join(nameParts, " ")), urls
}
