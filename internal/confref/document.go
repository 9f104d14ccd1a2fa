package confref

import "strings"

// Document is a working copy of a guest configuration: an ordered sequence
// of text lines that can be rewritten in memory and serialized back out.
type Document struct {
	lines []string
	// trailingNewline preserves whether the source ended with a newline so
	// the rewritten file round-trips byte-for-byte when nothing changes.
	trailingNewline bool
}

// ParseDocument splits raw configuration bytes into a Document.
func ParseDocument(data []byte) *Document {
	text := string(data)
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = strings.TrimSuffix(text, "\n")
	}
	return &Document{lines: strings.Split(text, "\n"), trailingNewline: trailing}
}

// Len returns the number of lines.
func (d *Document) Len() int {
	return len(d.lines)
}

// ReplaceVolume substitutes every literal occurrence of oldVol with newVol
// across the whole document and returns the number of lines changed. The
// same volume name can appear on its primary line, in unused-volume entries
// and inside snapshot sections, so the substitution is document-wide.
func (d *Document) ReplaceVolume(oldVol, newVol string) int {
	changed := 0
	for i, line := range d.lines {
		if !strings.Contains(line, oldVol) {
			continue
		}
		d.lines[i] = strings.ReplaceAll(line, oldVol, newVol)
		changed++
	}
	return changed
}

// Contains reports whether any line contains the literal text.
func (d *Document) Contains(text string) bool {
	for _, line := range d.lines {
		if strings.Contains(line, text) {
			return true
		}
	}
	return false
}

// Bytes serializes the document back to configuration bytes.
func (d *Document) Bytes() []byte {
	text := strings.Join(d.lines, "\n")
	if d.trailingNewline {
		text += "\n"
	}
	return []byte(text)
}
