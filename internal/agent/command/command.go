package command

import (
	"fmt"
	"strings"
)

// Kind identifies the decoded variant of a control-feed message.
type Kind string

const (
	// KindUpdate requests fetching and installing a file by relative path.
	KindUpdate Kind = "update"
	// KindInvalidPath is an update request whose path failed validation.
	// It is acknowledged as an update error and never reaches the fetcher.
	KindInvalidPath Kind = "invalid-path"
	// KindReboot requests a hardware reboot.
	KindReboot Kind = "reboot"
	// KindToggleLED requests a hardware LED toggle.
	KindToggleLED Kind = "toggleled"
	// KindUnknown is anything not matching a recognized message.
	KindUnknown Kind = "unknown"
)

// Command is the decoded form of one inbound control message.
type Command struct {
	Kind Kind

	// Path is the update target, relative to the writable root.
	// Set for KindUpdate and KindInvalidPath.
	Path string

	// PathErr describes why the path was rejected (KindInvalidPath only).
	PathErr error

	// Raw is the original message as received.
	Raw string
}

// updatePrefix is checked before the exact-match commands so that a message
// like "update-reboot" is an update of the file "reboot", not ambiguous.
const updatePrefix = "update-"

// Parse decodes a raw control message into a Command. Parsing is total:
// every input maps to exactly one variant and unrecognized input becomes
// KindUnknown rather than an error.
func Parse(raw string) Command {
	if rest, ok := strings.CutPrefix(raw, updatePrefix); ok {
		if err := ValidatePath(rest); err != nil {
			return Command{Kind: KindInvalidPath, Path: rest, PathErr: err, Raw: raw}
		}
		return Command{Kind: KindUpdate, Path: rest, Raw: raw}
	}

	// Exact, case-sensitive matches only.
	switch raw {
	case "reboot":
		return Command{Kind: KindReboot, Raw: raw}
	case "toggleled":
		return Command{Kind: KindToggleLED, Raw: raw}
	}

	return Command{Kind: KindUnknown, Raw: raw}
}

// ValidatePath checks that p is a usable slash-separated relative path:
// non-empty, not absolute, no backslashes or NUL bytes, and no empty,
// "." or ".." segments. The ".." check is the directory traversal guard;
// everything an update touches must resolve under the writable root.
func ValidatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("absolute path %q", p)
	}
	if strings.ContainsAny(p, "\\\x00") {
		return fmt.Errorf("illegal character in path %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return fmt.Errorf("empty segment in path %q", p)
		case ".", "..":
			return fmt.Errorf("relative segment %q in path %q", seg, p)
		}
	}
	return nil
}
