package executor

import (
	"fmt"
	"strings"

	"taskagent/pkg/executor/runner"
)

// ScriptKind classifies a script by the interpreter that runs it.
type ScriptKind int

const (
	KindShell ScriptKind = iota
	KindPython
	KindJavaScript
	KindRawExecutable
)

func (k ScriptKind) String() string {
	switch k {
	case KindShell:
		return "shell"
	case KindPython:
		return "python"
	case KindJavaScript:
		return "javascript"
	case KindRawExecutable:
		return "executable"
	default:
		return fmt.Sprintf("ScriptKind(%d)", int(k))
	}
}

// ParseKind maps an explicit script type name to a kind.
func ParseKind(s string) (ScriptKind, error) {
	switch s {
	case "shell", "bash", "sh":
		return KindShell, nil
	case "python", "py":
		return KindPython, nil
	case "javascript", "js", "node":
		return KindJavaScript, nil
	case "executable", "raw":
		return KindRawExecutable, nil
	default:
		return KindShell, fmt.Errorf("unknown script type %q", s)
	}
}

// KindFromName derives the kind from a script name's suffix. The match is
// case sensitive and total: unrecognized names are shell scripts.
func KindFromName(name string) ScriptKind {
	switch {
	case strings.HasSuffix(name, ".py"):
		return KindPython
	case strings.HasSuffix(name, ".sh"), strings.HasSuffix(name, ".bash"):
		return KindShell
	case strings.HasSuffix(name, ".js"):
		return KindJavaScript
	default:
		return KindShell
	}
}

// Interpreters names the binaries used for each interpreted kind.
type Interpreters struct {
	Python string
	Node   string
	Shell  string
}

func DefaultInterpreters() Interpreters {
	return Interpreters{
		Python: "python3",
		Node:   "node",
		Shell:  "/bin/bash",
	}
}

// KindSpec is how a kind is materialized and invoked.
type KindSpec struct {
	Suffix      string
	Interpreter string // empty: the artifact itself is executed
	Executable  bool   // artifact gets mode 0755
}

// Spec returns the materialization and invocation rules for k.
func (in Interpreters) Spec(k ScriptKind) KindSpec {
	switch k {
	case KindPython:
		return KindSpec{Suffix: ".py", Interpreter: in.Python}
	case KindJavaScript:
		return KindSpec{Suffix: ".js", Interpreter: in.Node}
	case KindRawExecutable:
		return KindSpec{Executable: true}
	default:
		return KindSpec{Suffix: ".sh", Interpreter: in.Shell, Executable: true}
	}
}

// Command builds the invocation of the artifact at path.
func (s KindSpec) Command(path string) runner.Command {
	if s.Interpreter == "" {
		return runner.Command{Path: path}
	}
	return runner.Command{Path: s.Interpreter, Args: []string{path}}
}
