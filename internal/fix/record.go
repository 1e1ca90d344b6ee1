package fix

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FixRecord is a validated fix produced by the model.
type FixRecord struct {
	IssueNumber   string   `json:"issueNumber"`
	TypeOfIssue   Category `json:"typeOfIssue"`
	FromLine      int      `json:"fromLine"`
	ToLine        int      `json:"toLine"`
	OriginalCode  string   `json:"originalCode"`
	FixedCode     string   `json:"fixedCode"`
	Justification string   `json:"justification"`
	Confidence    float64  `json:"confidence"`
}

// EmbeddingText returns the canonical text embedded for r.
//
// Field order is fixed and whitespace that does not change the meaning of
// a record (CRLF line endings, trailing blanks, surrounding empty lines) is
// normalized, so equal records always produce byte-identical output.
func (r FixRecord) EmbeddingText() string {
	var b strings.Builder
	writeField(&b, "issueNumber", normalizeLine(r.IssueNumber))
	writeField(&b, "typeOfIssue", string(r.TypeOfIssue))
	writeField(&b, "fromLine", strconv.Itoa(r.FromLine))
	writeField(&b, "toLine", strconv.Itoa(r.ToLine))
	writeBlock(&b, "originalCode", r.OriginalCode)
	writeBlock(&b, "fixedCode", r.FixedCode)
	writeBlock(&b, "justification", r.Justification)
	writeField(&b, "confidence", strconv.FormatFloat(r.Confidence, 'f', -1, 64))
	return strings.TrimSuffix(b.String(), "\n")
}

// EmbeddingText is the function form of FixRecord.EmbeddingText.
func EmbeddingText(r FixRecord) string {
	return r.EmbeddingText()
}

// MarshalPayload serializes r for storage.
func (r FixRecord) MarshalPayload() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling fix record %s: %w", r.IssueNumber, err)
	}
	return data, nil
}

// UnmarshalPayload decodes a stored payload.
func UnmarshalPayload(data []byte) (FixRecord, error) {
	var r FixRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return FixRecord{}, fmt.Errorf("decoding fix record payload: %w", err)
	}
	return r, nil
}

func writeField(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

func writeBlock(b *strings.Builder, name, value string) {
	b.WriteString(name)
	b.WriteString(":\n")
	if text := normalizeBlock(value); text != "" {
		b.WriteString(text)
		b.WriteByte('\n')
	}
	b.WriteString("---\n")
}

func normalizeLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

func normalizeBlock(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
