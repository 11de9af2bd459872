// Package agents defines the specialized sub-agents a task can be routed
// to. Each agent is a system prompt plus a tool allowance; the router picks
// one per task with simple first-match intent rules and falls back to the
// general-purpose planner.
package agents

import (
	"strings"

	"lumina/pkg/tools"
)

// Agent names.
const (
	NamePlanner       = "general-purpose"
	NameWebResearcher = "web-researcher"
	NameCodeExecutor  = "code-executor"
	NameGreeter       = "greeting-responder"
)

// Agent describes one sub-agent.
type Agent struct {
	name         string
	description  string
	systemPrompt string
	toolNames    []string
	match        func(intent string) bool
}

// Name returns the agent's registry name.
func (a *Agent) Name() string { return a.name }

// Description returns the one-line routing description.
func (a *Agent) Description() string { return a.description }

// SystemPrompt returns the agent's system prompt.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// ToolNames returns the names of tools this agent may call.
func (a *Agent) ToolNames() []string {
	out := make([]string, len(a.toolNames))
	copy(out, a.toolNames)
	return out
}

// CanHandle reports whether the agent claims the given task text.
func (a *Agent) CanHandle(intent string) bool {
	if a.match == nil {
		return false
	}
	return a.match(strings.ToLower(intent))
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// Planner is the general-purpose agent and the router's fallback. It holds
// the full tool surface.
func Planner() *Agent {
	return &Agent{
		name:        NamePlanner,
		description: "General-purpose task agent with the full tool surface",
		systemPrompt: `You are a capable task-execution assistant operating inside a sandboxed workspace.

Work in small, verifiable steps:
1. Understand the request and form a short plan.
2. Use tools to gather facts before acting; never guess file contents or system state.
3. After each tool result, reassess the plan before the next step.
4. When the task is done, summarize what was done and what changed.

Rules:
- Stay inside the workspace. Never attempt paths outside it.
- Prefer reading and listing before writing or deleting.
- If a tool call fails, read the error, adjust, and try a different approach instead of repeating the same call.
- Always produce a final answer for the user, even when a step failed.`,
		toolNames: []string{
			tools.ToolReadFile, tools.ToolWriteFile, tools.ToolListFiles,
			tools.ToolTreeView, tools.ToolDeleteFile, tools.ToolGrepSearch,
			tools.ToolReplaceInFile, tools.ToolShell, tools.ToolWebFetch,
			tools.ToolWebSearch, tools.ToolGetWeather, tools.ToolOSInfo,
		},
		match: nil, // fallback only
	}
}

// WebResearcher answers questions that need current information from the
// web.
func WebResearcher() *Agent {
	return &Agent{
		name:        NameWebResearcher,
		description: "Researches current information on the web",
		systemPrompt: `You are a focused web research assistant.

Process:
1. Search the web for the question's key terms.
2. Fetch the most promising result pages and read them.
3. Cross-check at least two sources when claims conflict.
4. Answer concisely and cite the URLs you used.

You cannot modify files or run commands; research only.`,
		toolNames: []string{tools.ToolWebSearch, tools.ToolWebFetch, tools.ToolGetWeather},
		match: func(intent string) bool {
			return containsAny(intent,
				"search", "look up", "research", "latest", "news",
				"weather", "current", "what is the", "who is")
		},
	}
}

// CodeExecutor handles tasks centered on inspecting and running code in the
// workspace.
func CodeExecutor() *Agent {
	return &Agent{
		name:        NameCodeExecutor,
		description: "Inspects the workspace and runs allow-listed commands",
		systemPrompt: `You are a careful code-execution assistant working in a sandboxed workspace.

Process:
1. Inspect the relevant files before running anything.
2. Run one command at a time and read its output fully.
3. Only allow-listed commands are available; compound commands and pipes are rejected.
4. Report the exact commands you ran and their outcomes.`,
		toolNames: []string{
			tools.ToolReadFile, tools.ToolListFiles, tools.ToolTreeView,
			tools.ToolGrepSearch, tools.ToolReplaceInFile, tools.ToolShell,
			tools.ToolOSInfo,
		},
		match: func(intent string) bool {
			return containsAny(intent,
				"run", "execute", "test", "build", "compile",
				"script", "command", "install")
		},
	}
}

// Greeter handles small talk without burning tool calls.
func Greeter() *Agent {
	return &Agent{
		name:        NameGreeter,
		description: "Responds to greetings and small talk",
		systemPrompt: `You are a friendly assistant. The user is greeting you or making small talk. Respond warmly in one or two sentences and offer to help with a task. Do not call any tools.`,
		toolNames:   nil,
		match: func(intent string) bool {
			trimmed := strings.TrimSpace(intent)
			if len(trimmed) > 60 {
				return false
			}
			return containsAny(trimmed,
				"hello", "hi there", "hey", "good morning", "good afternoon",
				"good evening", "how are you", "thanks", "thank you")
		},
	}
}

// Router selects an agent for a task. Routing is pure: the same input
// always yields the same agent, and the planner catches everything no
// specialist claims.
type Router struct {
	specialists []*Agent
	fallback    *Agent
}

// NewRouter creates a router over the default agent set.
func NewRouter() *Router {
	return &Router{
		specialists: []*Agent{Greeter(), WebResearcher(), CodeExecutor()},
		fallback:    Planner(),
	}
}

// Route returns the first specialist that claims the task, or the planner.
func (r *Router) Route(task string) *Agent {
	for _, agent := range r.specialists {
		if agent.CanHandle(task) {
			return agent
		}
	}
	return r.fallback
}

// Agents returns every agent the router knows, fallback last.
func (r *Router) Agents() []*Agent {
	out := make([]*Agent, 0, len(r.specialists)+1)
	out = append(out, r.specialists...)
	return append(out, r.fallback)
}
