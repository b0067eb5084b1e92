package model

import "strings"

// keySeparator is the ASCII unit separator; it cannot occur in form input.
const keySeparator = "\x1f"

// IdentityKey is the exact concatenation of name, company and email. No
// normalization is applied, so "AB"+"C" and "A"+"BC" collide.
func (l Lead) IdentityKey() string {
	return l.Name + l.Company + l.Email
}

// StructuredKey joins the identity fields with a separator that cannot
// appear in the fields, so distinct tuples never collide.
func (l Lead) StructuredKey() string {
	return strings.Join([]string{l.Name, l.Company, l.Email}, keySeparator)
}
