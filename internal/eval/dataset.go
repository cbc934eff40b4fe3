package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Example is one labelled candidate. Label true means the candidate is correct.
type Example struct {
	Prompt    string         `json:"prompt"`
	Candidate string         `json:"candidate"`
	Metadata  map[string]any `json:"metadata"`
	Label     bool           `json:"label"`
}

type jsonlExample struct {
	Prompt    *string        `json:"prompt"`
	Candidate *string        `json:"candidate"`
	Metadata  map[string]any `json:"metadata"`
	Label     *bool          `json:"label"`
}

// LoadDataset picks the loader by file extension (.xlsx or JSONL)
func LoadDataset(path string) ([]Example, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return LoadXLSX(path)
	}
	return LoadJSONL(path)
}

// LoadJSONL reads one example per non-blank line. prompt and candidate are
// required; label defaults to true and metadata to an empty map.
func LoadJSONL(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var raw jsonlExample
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		if raw.Prompt == nil || raw.Candidate == nil {
			return nil, fmt.Errorf("%s:%d: prompt and candidate are required", path, lineNo)
		}
		ex := Example{Prompt: *raw.Prompt, Candidate: *raw.Candidate, Metadata: raw.Metadata, Label: true}
		if raw.Label != nil {
			ex.Label = *raw.Label
		}
		if ex.Metadata == nil {
			ex.Metadata = map[string]any{}
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return examples, nil
}

// LoadXLSX reads Sheet1 with a header row naming the columns prompt,
// candidate, metadata (a JSON object) and label.
func LoadXLSX(path string) ([]Example, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Sheet1")
	if err != nil {
		return nil, fmt.Errorf("failed to read Sheet1: %w", err)
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("Excel file must have a header row")
	}

	columns := map[string]int{}
	for i, header := range rows[0] {
		columns[strings.ToLower(strings.TrimSpace(header))] = i
	}
	promptCol, okPrompt := columns["prompt"]
	candidateCol, okCandidate := columns["candidate"]
	if !okPrompt || !okCandidate {
		return nil, fmt.Errorf("Sheet1 must have prompt and candidate columns")
	}
	metadataCol, hasMetadata := columns["metadata"]
	labelCol, hasLabel := columns["label"]

	cell := func(row []string, col int) string {
		if col < len(row) {
			return row[col]
		}
		return ""
	}

	examples := make([]Example, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		ex := Example{
			Prompt:    cell(row, promptCol),
			Candidate: cell(row, candidateCol),
			Metadata:  map[string]any{},
			Label:     true,
		}
		if hasMetadata {
			if raw := strings.TrimSpace(cell(row, metadataCol)); raw != "" {
				if err := json.Unmarshal([]byte(raw), &ex.Metadata); err != nil {
					return nil, fmt.Errorf("row %d: metadata is not a JSON object: %w", i+1, err)
				}
			}
		}
		if hasLabel {
			if raw := strings.TrimSpace(cell(row, labelCol)); raw != "" {
				label, err := parseLabel(raw)
				if err != nil {
					return nil, fmt.Errorf("row %d: %w", i+1, err)
				}
				ex.Label = label
			}
		}
		examples = append(examples, ex)
	}
	return examples, nil
}

func parseLabel(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "yes", "y", "pass", "correct":
		return true, nil
	case "no", "n", "fail", "incorrect":
		return false, nil
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f != 0, nil
	}
	return false, fmt.Errorf("unrecognized label %q", raw)
}
