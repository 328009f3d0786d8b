package sender

import (
	"fmt"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"regwatch/internal/model"
)

// NewChangePayload renders one change as an immediate notification
// payload.
func NewChangePayload(c *model.Change) *Payload {
	return &Payload{
		Kind:    KindChange,
		Title:   changeTitle(c),
		Summary: ChangeSummary(c),
		Change:  c,
	}
}

// NewDigestPayload renders a window of already-filtered changes as one
// batched payload.
func NewDigestPayload(freq model.DigestFrequency, since, until time.Time, result *model.DiffResult) *Payload {
	d := &Digest{
		Frequency:    freq,
		Since:        since,
		Until:        until,
		NewCount:     len(result.NewServers),
		UpdatedCount: len(result.UpdatedServers),
		RemovedCount: len(result.RemovedServers),
		Changes:      result.AllChanges(),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d new, %d updated, %d removed\n", d.NewCount, d.UpdatedCount, d.RemovedCount)
	for _, c := range d.Changes {
		b.WriteString(changeTitle(c))
		b.WriteString("\n")
	}

	return &Payload{
		Kind:    KindDigest,
		Title:   fmt.Sprintf("%s digest: %d registry changes", freq, result.TotalChanges),
		Summary: strings.TrimRight(b.String(), "\n"),
		Digest:  d,
	}
}

func changeTitle(c *model.Change) string {
	switch c.ChangeType {
	case model.ChangeTypeNew:
		if c.NewVersion != "" {
			return fmt.Sprintf("[new] %s %s", c.ServerName, c.NewVersion)
		}
		return fmt.Sprintf("[new] %s", c.ServerName)
	case model.ChangeTypeRemoved:
		return fmt.Sprintf("[removed] %s", c.ServerName)
	default:
		if c.PreviousVersion != c.NewVersion && c.NewVersion != "" {
			return fmt.Sprintf("[updated] %s %s -> %s", c.ServerName, c.PreviousVersion, c.NewVersion)
		}
		return fmt.Sprintf("[updated] %s", c.ServerName)
	}
}

// ChangeSummary renders the field-level detail of a change, one line per
// changed field. Description changes get a compact inline diff instead of
// the full old/new texts.
func ChangeSummary(c *model.Change) string {
	if c.ChangeType != model.ChangeTypeUpdated || len(c.FieldChanges) == 0 {
		if c.Server != nil && c.Server.Description != "" {
			return c.Server.Description
		}
		return ""
	}
	var lines []string
	for _, fc := range c.FieldChanges {
		if fc.Field == model.FieldDescription {
			lines = append(lines, "description: "+inlineDiff(fc.OldValue, fc.NewValue))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %q -> %q", fc.Field, fc.OldValue, fc.NewValue))
	}
	return strings.Join(lines, "\n")
}

// inlineDiff renders old->new as a compact single line, marking deletions
// with [-...-] and insertions with [+...+].
func inlineDiff(old, new string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("[+" + d.Text + "+]")
		default:
			b.WriteString(d.Text)
		}
	}
	return b.String()
}
