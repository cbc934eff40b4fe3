// Package rules holds the built-in deterministic rule checks.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"hvt/domain/core"
)

// Metadata keys read by the built-in rules
const (
	MetaReferenceAnswer     = "reference_answer"
	MetaReferenceExpression = "reference_expression"
	MetaConstraints         = "constraints"
	MetaTestsCode           = "tests_code"
)

// Provenance rule names, shared with existing cache entries
const (
	NameNumericMatch          = "gsm8k_exact_match"
	NameExpressionEquivalence = "sympy_equivalence"
	NameLogicSAT              = "LogicSATRule"
	NamePythonUnitTest        = "PythonUnitTestRule"
)

var numericRe = regexp.MustCompile(`[-+]?\d+(?:/\d+)?(?:\.\d+)?`)

// NumericMatch compares the first number found in the candidate with the
// first number in metadata["reference_answer"] (GSM8K style exact match)
type NumericMatch struct{}

// NewNumericMatch creates the numeric exact-match rule
func NewNumericMatch() *NumericMatch {
	return &NumericMatch{}
}

func (r *NumericMatch) Name() string { return NameNumericMatch }

func (r *NumericMatch) Check(ctx context.Context, candidate string, metadata map[string]any) (bool, map[string]any, error) {
	reference := strings.TrimSpace(stringField(metadata, MetaReferenceAnswer))
	if reference == "" {
		return false, nil, core.NewRuleError(r.Name(), "metadata requires 'reference_answer'")
	}
	cand := ExtractNumber(candidate)
	ref := ExtractNumber(reference)
	return cand == ref, map[string]any{
		"candidate_normalized": cand,
		"reference_normalized": ref,
	}, nil
}

// ExtractNumber returns the first numeric token of text with thousands
// separators removed, or the trimmed text when it holds no number
func ExtractNumber(text string) string {
	if m := numericRe.FindString(strings.ReplaceAll(text, ",", "")); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}

// stringField renders metadata[key] as text; absent keys are empty
func stringField(metadata map[string]any, key string) string {
	v, ok := metadata[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return formatFloat(t)
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
