package parity

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	changesRe = regexp.MustCompile(`(\d+)\s+(?:added|removed|updated)`)
	filesRe   = regexp.MustCompile(`(\d+)\s+files`)
)

// Status is the structured summary of one parity-tool status run. Raw is
// always retained for diagnostics.
type Status struct {
	Protected  bool   `json:"protected"`
	Changes    int    `json:"changes"`
	FilesCount int    `json:"files_count"`
	Raw        string `json:"raw_output"`
}

// ParseStatus interprets the textual output of the parity tool's status
// subcommand. Best effort, never fails: text it does not understand yields
// zero counts.
func ParseStatus(raw string) *Status {
	status := &Status{Raw: raw}

	if strings.Contains(strings.ToLower(raw), "no differences") {
		status.Protected = true
	} else {
		for _, m := range changesRe.FindAllStringSubmatch(raw, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			status.Changes += n
		}
	}

	if m := filesRe.FindStringSubmatch(raw); m != nil {
		status.FilesCount, _ = strconv.Atoi(m[1])
	}

	return status
}
