package session

import "strings"

// interactivePrograms need a persistent terminal rather than a single
// request/response round trip.
var interactivePrograms = []string{
	"vim", "vi", "nano", "emacs",
	"less", "more", "man",
	"htop", "top",
	"mysql", "psql", "mongo", "redis-cli",
	"python", "python3", "node", "irb",
	"ssh", "telnet", "ftp", "sftp",
}

// IsInteractive reports whether command starts one of the interactive
// programs: the case-folded command must be the program name alone or the
// name followed by a space.
func IsInteractive(command string) bool {
	cmd := strings.ToLower(strings.TrimSpace(command))
	for _, name := range interactivePrograms {
		if cmd == name || strings.HasPrefix(cmd, name+" ") {
			return true
		}
	}
	return false
}

type commandKind int

const (
	commandGeneric commandKind = iota
	commandClear
	commandChangeDir
)

type parsedCommand struct {
	kind commandKind
	// target is the cd argument; empty for a bare cd.
	target string
}

func parseCommand(raw string) parsedCommand {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "clear":
		return parsedCommand{kind: commandClear}
	case trimmed == "cd" || strings.HasPrefix(trimmed, "cd "):
		pc := parsedCommand{kind: commandChangeDir}
		// Only the first argument counts; the rest is ignored.
		if fields := strings.Fields(trimmed); len(fields) > 1 {
			pc.target = fields[1]
		}
		return pc
	default:
		return parsedCommand{kind: commandGeneric}
	}
}

// ResolvePath computes the working directory after "cd target" from current.
// It is purely lexical and never consults the sandbox filesystem. An empty
// target leaves current unchanged; a bare cd is handled by the caller.
func ResolvePath(current, target string) string {
	switch {
	case target == "":
		return current
	case strings.HasPrefix(target, "/"):
		return target
	case target == "..":
		return parentDir(current)
	case target == ".":
		return current
	case strings.HasPrefix(target, "../"):
		parent := parentDir(current)
		rest := strings.TrimLeft(strings.TrimPrefix(target, "../"), "/")
		if rest == "" {
			return parent
		}
		return ResolvePath(parent, rest)
	case strings.HasSuffix(current, "/"):
		return current + target
	default:
		return current + "/" + target
	}
}

// parentDir drops the last segment of dir, never ascending out of home.
func parentDir(dir string) string {
	if strings.TrimRight(dir, "/") == HomeDir {
		return HomeDir
	}
	var segments []string
	for _, s := range strings.Split(dir, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) <= 1 {
		return HomeDir
	}
	return "/" + strings.Join(segments[:len(segments)-1], "/")
}
