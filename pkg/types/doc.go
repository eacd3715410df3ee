/*
Package types defines the core data structures shared across bastion.

This package holds the domain model consumed by every other package: the unit
of work (Task), the descriptor loaded from a tool's configuration (Tool), the
immutable run configuration (Settings), and the artifact shapes written to and
read from a result directory (TaskLog, ParsedOutput, Finding).

# Core Types

Execution:
  - Task: one (file, tool, args) execution unit
  - Tool: loaded tool descriptor (image, mode, command/entrypoint templates)
  - Mode: solidity, bytecode, or runtime — the execution mode a Task and its
    Tool must agree on
  - Settings: read-mostly run-global configuration, frozen once before use

Artifacts:
  - TaskLog: the smartbugs.json artifact written after every executed task
  - ParsedOutput: the normalized result.json produced by a parser
  - Finding: one normalized detection, with zero or more category tags
  - PlatformInfo: host metadata carried into every TaskLog

Routing:
  - VulnReport: a classified finding as consumed by the router
  - RouteResult: a follow-up (tool, args, timeout) triple produced by routing

# Design notes

Tool and Settings are loaded once and treated as read-mostly; the
dedup/accounting maps a run accumulates while scheduling (tool_keys,
tool_arg_history, scheduled_tools) are deliberately NOT part of Settings —
they live in pkg/config.SharedState, mutated only through its serialized
accessors, so this package stays free of concurrency concerns.

BaseTool strips a "-variant" suffix some tool ids carry (mythril-quick ->
mythril); callers needing the unqualified tool name for dedup/routing keys
should always go through it rather than splitting ID themselves.
*/
package types
