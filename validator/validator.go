// Package validator checks the operator supplied inputs of a mailing run
// before anything is assembled or sent.
package validator

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// The pattern only admits 2 to 4 letter top-level domains. Longer ones such
// as .museum are rejected.
var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,4}$`)

// EmailAddress is an address that passed ValidateEmail.
type EmailAddress string

func (a EmailAddress) String() string {
	return string(a)
}

// ExistingPath is a path that referenced a regular file when it was
// validated. The file may have gone away since.
type ExistingPath string

func (p ExistingPath) String() string {
	return string(p)
}

type InvalidAddressError struct {
	Address string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("'%s' is not a valid email address", e.Address)
}

// MissingFilesError lists every path that did not reference a regular file.
type MissingFilesError struct {
	Paths []string
}

func (e *MissingFilesError) Error() string {
	return "the following files specified to be attached to the email do not exist: " + strings.Join(e.Paths, ", ")
}

// ValidateEmail returns address unchanged if it matches the address pattern.
func ValidateEmail(address string) (EmailAddress, error) {
	if !emailPattern.MatchString(address) {
		return "", &InvalidAddressError{Address: address}
	}
	return EmailAddress(address), nil
}

func isRegularFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// ValidateFilepaths checks every path and reports all of the missing ones
// at once.
func ValidateFilepaths(paths []string) ([]ExistingPath, error) {
	var missing []string
	retval := make([]ExistingPath, 0, len(paths))
	for _, p := range paths {
		if !isRegularFile(p) {
			missing = append(missing, p)
			continue
		}
		retval = append(retval, ExistingPath(p))
	}
	if len(missing) > 0 {
		return nil, &MissingFilesError{Paths: missing}
	}
	return retval, nil
}
