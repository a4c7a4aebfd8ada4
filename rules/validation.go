package rules

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxLabelLength is the longest label name accepted by move.
const maxLabelLength = 225

// ValidateLabel checks a move target label name.
func ValidateLabel(name string) error {
	if name == "" {
		return fmt.Errorf("label cannot be empty")
	}
	if n := utf8.RuneCountInString(name); n > maxLabelLength {
		return fmt.Errorf("label length %d exceeds maximum of %d characters", n, maxLabelLength)
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("label %q has leading or trailing whitespace", name)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return fmt.Errorf("label %q contains control characters", name)
	}
	if isReservedLabel(name) {
		return fmt.Errorf("label %q cannot be a move target", name)
	}
	return nil
}

// isReservedLabel reports labels that are managed by the mailbox service or
// by other actions and cannot be applied with move.
func isReservedLabel(name string) bool {
	reserved := map[string]bool{
		MarkerUnread: true, // use set_status
		"SENT":       true,
		"DRAFT":      true,
		"CHAT":       true,
	}
	return reserved[strings.ToUpper(name)]
}

// validateRuleShape checks the structural requirements of a rule that do not
// depend on compiling its conditions or actions.
func validateRuleShape(r Rule) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: rule id cannot be empty", ErrInvalidRule)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s has no conditions", ErrInvalidRule, r.ID)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: rule %s has no actions", ErrInvalidRule, r.ID)
	}
	return nil
}
