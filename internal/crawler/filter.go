package crawler

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidIdentifier marks a login or collection name the discovery API
// cannot be queried with. Such identifiers are skipped with a warning.
var ErrInvalidIdentifier = errors.New("crawler: invalid identifier")

const maxLoginLength = 39

var (
	// Alphanumerics separated by single hyphens. Bot accounts such as
	// "dependabot[bot]" do not match and break the user lookup.
	loginPattern = regexp.MustCompile(`^[A-Za-z0-9]+(?:-[A-Za-z0-9]+)*$`)

	// Owners may be organizations, which allow a trailing or doubled hyphen
	ownerPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)
	repoNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
)

// ValidateLogin checks a subject identifier
func ValidateLogin(login string) error {
	if login == "" || len(login) > maxLoginLength || !loginPattern.MatchString(login) {
		return fmt.Errorf("%w: login %q", ErrInvalidIdentifier, login)
	}
	return nil
}

// SplitCollection splits and validates an "owner/name" collection identifier
func SplitCollection(collection string) (owner, name string, err error) {
	owner, name, found := strings.Cut(collection, "/")
	if !found || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("%w: collection %q is not owner/name", ErrInvalidIdentifier, collection)
	}
	if len(owner) > maxLoginLength || !ownerPattern.MatchString(owner) {
		return "", "", fmt.Errorf("%w: collection owner %q", ErrInvalidIdentifier, owner)
	}
	if name == "." || name == ".." || !repoNamePattern.MatchString(name) {
		return "", "", fmt.Errorf("%w: collection name %q", ErrInvalidIdentifier, name)
	}
	return owner, name, nil
}

// ValidateCollection checks a collection identifier
func ValidateCollection(collection string) error {
	_, _, err := SplitCollection(collection)
	return err
}
