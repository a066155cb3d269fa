// Package policy decides whether a raw command string may be handed to
// the execution engine. It layers a command-basename allow-list under a
// fixed dangerous-pattern scan. The pattern scan is substring-based and
// best-effort only; it is not a security boundary.
package policy

import (
	"fmt"
	"strings"
)

// Wildcard is the sentinel allow-list entry for unrestricted mode.
const Wildcard = "*"

// forbiddenPatterns are scanned against the raw command text regardless
// of mode. Known to both over- and under-block.
var forbiddenPatterns = []string{
	"..",
	"~/",
	"/etc/",
	"/root/",
	"$(",
	"`",
	";rm",
	"; rm",
	";sudo",
	"; sudo",
}

// maxEnumerated caps how many allowed commands a deny reason lists
// before sampling.
const maxEnumerated = 10

// Decision is the outcome of evaluating one command.
type Decision struct {
	Allowed bool
	Reason  string
}

// Filter holds an immutable policy snapshot loaded at startup.
type Filter struct {
	allowed      map[string]struct{}
	ordered      []string
	unrestricted bool
}

// NewFilter builds a filter from the configured allow-list. A list
// consisting of the single wildcard entry enables unrestricted mode;
// the dangerous-pattern scan still applies there.
func NewFilter(allowedCommands []string) *Filter {
	f := &Filter{allowed: make(map[string]struct{})}
	if len(allowedCommands) == 1 && allowedCommands[0] == Wildcard {
		f.unrestricted = true
		return f
	}
	for _, cmd := range allowedCommands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		if _, ok := f.allowed[cmd]; !ok {
			f.allowed[cmd] = struct{}{}
			f.ordered = append(f.ordered, cmd)
		}
	}
	return f
}

// Evaluate checks a raw command string against the policy.
func (f *Filter) Evaluate(command string) Decision {
	if strings.TrimSpace(command) == "" {
		return Decision{Reason: "empty command"}
	}

	for _, pattern := range forbiddenPatterns {
		if strings.Contains(command, pattern) {
			return Decision{Reason: fmt.Sprintf("dangerous pattern detected: %q", pattern)}
		}
	}

	if f.unrestricted {
		return Decision{Allowed: true}
	}

	base := strings.Fields(command)[0]
	if _, ok := f.allowed[base]; !ok {
		return Decision{Reason: fmt.Sprintf("command %q not allowed; allowed: %s", base, f.describeAllowed())}
	}
	return Decision{Allowed: true}
}

// Unrestricted reports whether the basename allow-list is disabled.
func (f *Filter) Unrestricted() bool {
	return f.unrestricted
}

// AllowedCommands returns the configured allow-list in load order, or
// the wildcard sentinel in unrestricted mode. The slice is a copy.
func (f *Filter) AllowedCommands() []string {
	if f.unrestricted {
		return []string{Wildcard}
	}
	return append([]string(nil), f.ordered...)
}

func (f *Filter) describeAllowed() string {
	if len(f.ordered) <= maxEnumerated {
		return strings.Join(f.ordered, ", ")
	}
	sample := strings.Join(f.ordered[:maxEnumerated], ", ")
	return fmt.Sprintf("%s, ... (%d total)", sample, len(f.ordered))
}
