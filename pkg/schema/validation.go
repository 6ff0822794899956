package schema

// ValidationResult describes whether diagram text is syntactically acceptable
// to the parse capability.
//
// When IsValid is true, FixedText equals the (possibly normalized) input and
// Suggestions is empty. AddedDeclaration records the declaration the
// normalizer injected, if any.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Error            string   `json:"error,omitempty"`
	FixedText        string   `json:"fixed_text,omitempty"`
	Suggestions      []string `json:"suggestions,omitempty"`
	AddedDeclaration string   `json:"added_declaration,omitempty"`
}

// ToError converts the result to a PipelineError if invalid, nil if valid.
func (r *ValidationResult) ToError() error {
	if r.IsValid {
		return nil
	}
	return NewError(ErrCodeSyntax, r.Error).
		WithDetails(map[string]any{
			"fixed_text":  r.FixedText,
			"suggestions": r.Suggestions,
		})
}
