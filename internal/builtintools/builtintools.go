// Package builtintools implements the Built-in Tool Set (C18): the
// read_file, write_file, delete_path, list_dir, fork, and task_finish
// tools every agent is offered, per SPEC_FULL.md §4.17.
package builtintools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentworkbench/workbench/internal/approval"
	"github.com/agentworkbench/workbench/internal/hostapi"
	"github.com/agentworkbench/workbench/internal/orchestrator"
	"github.com/agentworkbench/workbench/internal/toolctx"
	"github.com/agentworkbench/workbench/internal/toolerrors"
	"github.com/agentworkbench/workbench/internal/tools"
)

const (
	readFileSchema   = `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`
	writeFileSchema  = `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`
	deletePathSchema = `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`
	listDirSchema    = `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`
	forkSchema       = `{"type":"object","properties":{"context_summary":{"type":"string"},"children":{"type":"array","items":{"type":"object","properties":{"prompt":{"type":"string"},"allowedPaths":{"type":"array","items":{"type":"string"}},"model":{"type":"string"}},"required":["prompt"]}}},"required":["children"]}`
	taskFinishSchema = `{"type":"object","properties":{"summary":{"type":"string"}},"required":["summary"]}`
)

// Build assembles the built-in tool set, wiring read/write/delete/list
// against fs, mutating calls through gate for human-in-the-loop approval
// (spec.md §4.5), fork against orch, and task_finish against orch.
func Build(fs hostapi.FileSystem, gate *approval.Gate, orch *orchestrator.Orchestrator) []*tools.Spec {
	return []*tools.Spec{
		readFileTool(fs),
		writeFileTool(fs, gate),
		deletePathTool(fs, gate),
		listDirTool(fs),
		forkTool(orch),
		taskFinishTool(orch),
	}
}

func readFileTool(fs hostapi.FileSystem) *tools.Spec {
	return &tools.Spec{
		Name:        "read_file",
		Description: "Read the UTF-8 text content of a file within the agent's allowed paths.",
		Schema:      json.RawMessage(readFileSchema),
		Caller:      tools.Common,
		ReadOnly:    true,
		Execute: func(args json.RawMessage, tc *toolctx.Context) (string, error) {
			var in struct{ Path string }
			if err := json.Unmarshal(args, &in); err != nil {
				return "", toolerrors.Wrap("parse read_file arguments", err)
			}
			if !toolctx.IsAllowed(tc.AllowedPaths, in.Path) {
				return "", toolerrors.New(toolerrors.AccessDenied(in.Path))
			}
			raw, err := fs.ReadFile(in.Path)
			if err != nil {
				return "", toolerrors.Wrap(fmt.Sprintf("read %s", in.Path), err)
			}
			return string(raw), nil
		},
		Prettify: func(args json.RawMessage) string {
			var in struct{ Path string }
			_ = json.Unmarshal(args, &in)
			return fmt.Sprintf("Read %s", in.Path)
		},
	}
}

func writeFileTool(fs hostapi.FileSystem, gate *approval.Gate) *tools.Spec {
	return &tools.Spec{
		Name:        "write_file",
		Description: "Write (creating or overwriting) a file within the agent's allowed paths. Requires approval.",
		Schema:      json.RawMessage(writeFileSchema),
		Caller:      tools.Common,
		Execute: func(args json.RawMessage, tc *toolctx.Context) (string, error) {
			var in struct {
				Path    string
				Content string
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", toolerrors.Wrap("parse write_file arguments", err)
			}
			if !toolctx.IsAllowed(tc.AllowedPaths, in.Path) {
				return "", toolerrors.New(toolerrors.AccessDenied(in.Path))
			}
			approved, err := gate.RequestApproval(tc.Ctx, "write file", in.Path, summarize(in.Content))
			if err != nil {
				return "", err
			}
			if !approved {
				return toolerrors.Rejected("file write"), nil
			}
			if err := fs.WriteFile(in.Path, []byte(in.Content)); err != nil {
				return "", toolerrors.Wrap(fmt.Sprintf("write %s", in.Path), err)
			}
			return fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.Path), nil
		},
		Prettify: func(args json.RawMessage) string {
			var in struct{ Path string }
			_ = json.Unmarshal(args, &in)
			return fmt.Sprintf("Write %s", in.Path)
		},
	}
}

func deletePathTool(fs hostapi.FileSystem, gate *approval.Gate) *tools.Spec {
	return &tools.Spec{
		Name:        "delete_path",
		Description: "Delete a file within the agent's allowed paths. Requires approval.",
		Schema:      json.RawMessage(deletePathSchema),
		Caller:      tools.Common,
		Execute: func(args json.RawMessage, tc *toolctx.Context) (string, error) {
			var in struct{ Path string }
			if err := json.Unmarshal(args, &in); err != nil {
				return "", toolerrors.Wrap("parse delete_path arguments", err)
			}
			if !toolctx.IsAllowed(tc.AllowedPaths, in.Path) {
				return "", toolerrors.New(toolerrors.AccessDenied(in.Path))
			}
			approved, err := gate.RequestApproval(tc.Ctx, "delete", in.Path, "")
			if err != nil {
				return "", err
			}
			if !approved {
				return toolerrors.Rejected("delete"), nil
			}
			if err := fs.DeleteFile(in.Path); err != nil {
				return "", toolerrors.Wrap(fmt.Sprintf("delete %s", in.Path), err)
			}
			return fmt.Sprintf("Deleted %s", in.Path), nil
		},
		Prettify: func(args json.RawMessage) string {
			var in struct{ Path string }
			_ = json.Unmarshal(args, &in)
			return fmt.Sprintf("Delete %s", in.Path)
		},
	}
}

func listDirTool(fs hostapi.FileSystem) *tools.Spec {
	return &tools.Spec{
		Name:        "list_dir",
		Description: "List the entries of a directory within the agent's allowed paths.",
		Schema:      json.RawMessage(listDirSchema),
		Caller:      tools.Common,
		ReadOnly:    true,
		Execute: func(args json.RawMessage, tc *toolctx.Context) (string, error) {
			var in struct{ Path string }
			if err := json.Unmarshal(args, &in); err != nil {
				return "", toolerrors.Wrap("parse list_dir arguments", err)
			}
			if !toolctx.IsAllowed(tc.AllowedPaths, in.Path) {
				return "", toolerrors.New(toolerrors.AccessDenied(in.Path))
			}
			entries, err := fs.ReadDirectory(in.Path)
			if err != nil {
				return "", toolerrors.Wrap(fmt.Sprintf("list %s", in.Path), err)
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				name := e.Name
				if e.IsDir {
					name += "/"
				}
				names = append(names, name)
			}
			return strings.Join(names, "\n"), nil
		},
		Prettify: func(args json.RawMessage) string {
			var in struct{ Path string }
			_ = json.Unmarshal(args, &in)
			return fmt.Sprintf("List %s", in.Path)
		},
	}
}

func forkTool(orch *orchestrator.Orchestrator) *tools.Spec {
	return &tools.Spec{
		Name:        "fork",
		Description: "Spawn one or more sub-agents with their own prompts and allowed paths, then wait for all of them to finish or be deleted.",
		Schema:      json.RawMessage(forkSchema),
		Caller:      tools.Common,
		Execute: func(args json.RawMessage, tc *toolctx.Context) (string, error) {
			var in struct {
				ContextSummary string `json:"context_summary"`
				Children       []struct {
					Prompt       string
					AllowedPaths []string
					Model        string
				}
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return "", toolerrors.Wrap("parse fork arguments", err)
			}
			if len(in.Children) == 0 {
				return "", toolerrors.New("fork requires at least one child")
			}
			specs := make([]orchestrator.ChildSpec, 0, len(in.Children))
			for _, c := range in.Children {
				allowed := c.AllowedPaths
				if len(allowed) == 0 {
					allowed = tc.AllowedPaths
				}
				specs = append(specs, orchestrator.ChildSpec{Prompt: c.Prompt, AllowedPaths: allowed, Model: c.Model})
			}
			session, err := orch.Spawn(tc.Ctx, tc.AgentID, in.ContextSummary, specs)
			if err != nil {
				return "", toolerrors.Wrap("spawn sub-agents", err)
			}
			report, err := session.Await(tc.Ctx)
			if err != nil {
				return "", err
			}
			return report, nil
		},
		Prettify: func(args json.RawMessage) string {
			var in struct {
				Children []struct{ Prompt string }
			}
			_ = json.Unmarshal(args, &in)
			return fmt.Sprintf("Fork %d sub-agent(s)", len(in.Children))
		},
	}
}

func taskFinishTool(orch *orchestrator.Orchestrator) *tools.Spec {
	return &tools.Spec{
		Name:        "task_finish",
		Description: "Report that the task is complete, ending the agent's run loop and surfacing the summary to the parent (child agents only).",
		Schema:      json.RawMessage(taskFinishSchema),
		Caller:      tools.ChildOnly,
		Execute: func(args json.RawMessage, tc *toolctx.Context) (string, error) {
			var in struct{ Summary string }
			if err := json.Unmarshal(args, &in); err != nil {
				return "", toolerrors.Wrap("parse task_finish arguments", err)
			}
			orch.TaskFinishReported(tc.AgentID, in.Summary)
			tc.Terminate()
			return in.Summary, toolerrors.Terminate
		},
		Prettify: func(args json.RawMessage) string {
			return "Finish task"
		},
	}
}

func summarize(content string) string {
	const max = 200
	if len(content) <= max {
		return content
	}
	return content[:max] + "…"
}
