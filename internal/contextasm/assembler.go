// Package contextasm implements the Context Assembler (C10): it expands
// static file references and dynamic tool references embedded in prompts
// and rule files to produce the runtime system prompt, per spec.md §4.10.
package contextasm

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentworkbench/workbench/internal/approval"
	"github.com/agentworkbench/workbench/internal/hostapi"
	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/tools"
)

// maxIncludeDepth bounds REF[...] recursion so cyclic includes terminate
// (spec.md §4.10, §5 budgets: "include-expansion depth 20").
const maxIncludeDepth = 20

// refPattern matches both REF[...] syntaxes; the branch is disambiguated
// inside expand by checking for a leading identifier followed by '{'.
var refPattern = regexp.MustCompile(`REF\[([^\[\]]*)\]`)

// toolRefPattern recognises the dynamic-tool form REF[toolName{jsonArgs}];
// the second group keeps the braces, so it is the whole JSON argument object.
var toolRefPattern = regexp.MustCompile(`^([A-Za-z0-9_\-]+)(\{.*\})$`)

// textLikeExt are the file extensions whose included content is itself
// recursively expanded for references (spec.md §4.10 item 1).
var textLikeExt = map[string]bool{".md": true, ".txt": true}

// Assembler resolves REF[...] syntax against a host filesystem and a tool
// registry.
type Assembler struct {
	fs       hostapi.FileSystem
	registry *tools.Registry
	gate     *approval.Gate
}

// New constructs an Assembler.
func New(fs hostapi.FileSystem, registry *tools.Registry, gate *approval.Gate) *Assembler {
	return &Assembler{fs: fs, registry: registry, gate: gate}
}

// FrontMatter holds parameters collected from included Markdown's front
// matter, propagated to the caller (spec.md §4.10 item 1).
type FrontMatter map[string]any

// Expand resolves every REF[...] occurrence in prompt, in order, returning
// the expanded text and any front-matter parameters collected along the
// way. Tool references execute inside the rule-parsing scope, so their
// side effects are auto-approved (spec.md §4.10 item 2).
func (a *Assembler) Expand(ctx context.Context, prompt string, agentID string, allowedPaths []string) (string, FrontMatter, error) {
	fm := FrontMatter{}
	out := a.expand(ctx, prompt, agentID, allowedPaths, 0, fm)
	return out, fm, nil
}

func (a *Assembler) expand(ctx context.Context, text string, agentID string, allowedPaths []string, depth int, fm FrontMatter) string {
	if depth >= maxIncludeDepth {
		return text
	}
	return refPattern.ReplaceAllStringFunc(text, func(match string) string {
		inner := match[len("REF[") : len(match)-1]
		if m := toolRefPattern.FindStringSubmatch(inner); m != nil {
			return a.expandToolRef(ctx, m[1], m[2], agentID, allowedPaths)
		}
		return a.expandStaticRef(ctx, inner, agentID, allowedPaths, depth, fm)
	})
}

// expandStaticRef implements REF[path], REF[path:line], and
// REF[path:startLine:endLine] (spec.md §6 prompt reference syntax).
func (a *Assembler) expandStaticRef(ctx context.Context, spec string, agentID string, allowedPaths []string, depth int, fm FrontMatter) string {
	parts := strings.Split(spec, ":")
	path := parts[0]
	if !toolctx.IsAllowed(allowedPaths, path) {
		return fmt.Sprintf("> Error: %q is outside the agent's allowed paths", path)
	}

	entries, dirErr := a.fs.ReadDirectory(path)
	if dirErr == nil {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name)
		}
		return strings.Join(names, "\n")
	}

	raw, err := a.fs.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("> Error: could not read %q: %s", path, err.Error())
	}
	content := string(raw)

	if len(parts) >= 2 {
		content = sliceLines(content, parts[1:])
	}

	ext := strings.ToLower(filepath.Ext(path))
	if textLikeExt[ext] {
		body, front := splitFrontMatter(content)
		for k, v := range front {
			fm[k] = v
		}
		content = a.expand(ctx, body, agentID, allowedPaths, depth+1, fm)
	}

	return content
}

func sliceLines(content string, bounds []string) string {
	lines := strings.Split(content, "\n")
	start, err := strconv.Atoi(bounds[0])
	if err != nil || start < 1 {
		return content
	}
	end := start
	if len(bounds) >= 2 {
		if e, err := strconv.Atoi(bounds[1]); err == nil {
			end = e
		}
	}
	if start > len(lines) {
		return ""
	}
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[start-1:end], "\n")
}

// splitFrontMatter extracts a leading "---\n...\n---\n" YAML block, if any.
func splitFrontMatter(content string) (body string, fm FrontMatter) {
	fm = FrontMatter{}
	if !strings.HasPrefix(content, "---\n") {
		return content, fm
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return content, fm
	}
	block := rest[:end]
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(block), &parsed); err == nil {
		for k, v := range parsed {
			fm[k] = v
		}
	}
	remainder := rest[end+4:]
	remainder = strings.TrimPrefix(remainder, "\n")
	return remainder, fm
}

// expandToolRef implements REF[toolName{jsonArgs}]: parse arguments and
// invoke the tool through the dispatcher with a root-agent context, inside
// the rule-parsing scope (spec.md §4.10 item 2).
func (a *Assembler) expandToolRef(ctx context.Context, toolName, jsonArgs string, agentID string, allowedPaths []string) string {
	if !json.Valid([]byte(jsonArgs)) && jsonArgs != "" {
		return fmt.Sprintf("> Error: invalid arguments for %s", toolName)
	}
	args := json.RawMessage(jsonArgs)
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	a.gate.EnterRuleParsing()
	defer a.gate.ExitRuleParsing()

	tc := &toolctx.Context{
		Ctx:          ctx,
		AgentID:      agentID,
		AllowedPaths: allowedPaths,
	}
	result, err := a.registry.Dispatch(toolName, args, false, tc)
	if err != nil {
		return fmt.Sprintf("> Error: %s", err.Error())
	}
	return result
}
