package poolconfig

import (
	"fmt"
	"os"
	"strings"
)

// ConfigWriteFailed reports an unwritable persistent resource.
type ConfigWriteFailed struct {
	Resource string
	Err      error
}

func (e *ConfigWriteFailed) Error() string {
	return fmt.Sprintf("writing %s failed: %v", e.Resource, e.Err)
}

func (e *ConfigWriteFailed) Unwrap() error {
	return e.Err
}

// Writer commits generated artifacts to their persistent host resources.
type Writer interface {
	// ReplaceFstabSection rewrites the named managed section of the mount
	// table, so re-provisioning is idempotent instead of appending forever.
	ReplaceFstabSection(section, content string) error
	// WriteParityConf replaces the parity tool configuration.
	WriteParityConf(content string) error
}

type HostWriter struct {
	FstabPath      string
	ParityConfPath string
}

func sectionMarkers(section string) (string, string) {
	return fmt.Sprintf("# BEGIN storbox %s", section), fmt.Sprintf("# END storbox %s", section)
}

func (w *HostWriter) ReplaceFstabSection(section, content string) error {
	raw, err := os.ReadFile(w.FstabPath)
	if err != nil && !os.IsNotExist(err) {
		return &ConfigWriteFailed{Resource: w.FstabPath, Err: err}
	}

	begin, end := sectionMarkers(section)
	kept := stripSection(string(raw), begin, end)

	var b strings.Builder
	b.WriteString(kept)
	if !strings.HasSuffix(kept, "\n") && kept != "" {
		b.WriteString("\n")
	}
	b.WriteString(begin + "\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(end + "\n")

	if err := os.WriteFile(w.FstabPath, []byte(b.String()), 0644); err != nil {
		return &ConfigWriteFailed{Resource: w.FstabPath, Err: err}
	}
	return nil
}

func (w *HostWriter) WriteParityConf(content string) error {
	if err := os.WriteFile(w.ParityConfPath, []byte(content), 0644); err != nil {
		return &ConfigWriteFailed{Resource: w.ParityConfPath, Err: err}
	}
	return nil
}

// stripSection removes a previously written managed block, markers included.
func stripSection(text, begin, end string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	inside := false
	for _, line := range lines {
		switch {
		case strings.TrimSpace(line) == begin:
			inside = true
		case strings.TrimSpace(line) == end:
			inside = false
		case !inside:
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
