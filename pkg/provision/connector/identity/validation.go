package identity

import (
	"crypto/rand"
	"math/big"
	"regexp"
	"strings"
	"unicode"

	"github.com/tigerroll/provisioner/pkg/provision/support/util/exception"
)

const (
	maxDomainLength    = 253
	maxLocalPartLength = 64
	minPasswordLength  = 12
	generatedLength    = 16

	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{}"
)

var (
	domainLabelPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	localPartPattern   = regexp.MustCompile(`^[a-z0-9._-]+$`)
)

// ValidateDomain checks RFC 1035 hostname syntax: at most 253 characters, at least two
// labels, each label 1-63 alphanumerics or hyphens not starting or ending with a hyphen.
func ValidateDomain(domain string) error {
	d := strings.ToLower(strings.TrimSuffix(domain, "."))
	if d == "" {
		return validationError("domain is required")
	}
	if len(d) > maxDomainLength {
		return validationError("domain %q exceeds %d characters", domain, maxDomainLength)
	}
	labels := strings.Split(d, ".")
	if len(labels) < 2 {
		return validationError("domain %q must have at least two labels", domain)
	}
	for _, label := range labels {
		if !domainLabelPattern.MatchString(label) {
			return validationError("domain %q has an invalid label %q", domain, label)
		}
	}
	return nil
}

// ValidateLocalPart checks the mailbox name before the @.
func ValidateLocalPart(localPart string) error {
	lp := strings.ToLower(localPart)
	switch {
	case lp == "":
		return validationError("local part is required")
	case len(lp) > maxLocalPartLength:
		return validationError("local part %q exceeds %d characters", localPart, maxLocalPartLength)
	case !localPartPattern.MatchString(lp):
		return validationError("local part %q may only contain letters, digits, '.', '_' and '-'", localPart)
	case strings.HasPrefix(lp, ".") || strings.HasSuffix(lp, "."):
		return validationError("local part %q must not start or end with a dot", localPart)
	case strings.Contains(lp, ".."):
		return validationError("local part %q must not contain consecutive dots", localPart)
	}
	return nil
}

// ValidatePassword enforces the strength policy on caller-supplied passwords.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return exception.NewBatchErrorf(moduleName, exception.KindInvalidCredentials,
			"password must be at least %d characters", minPasswordLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return exception.NewBatchError(moduleName, exception.KindInvalidCredentials,
			"password must contain upper and lower case letters, a digit and a symbol", nil)
	}
	return nil
}

// GeneratePassword returns a random password that satisfies ValidatePassword.
func GeneratePassword() (string, error) {
	classes := []string{lowerChars, upperChars, digitChars, symbolChars}
	all := strings.Join(classes, "")

	buf := make([]byte, 0, generatedLength)
	for _, class := range classes {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < generatedLength {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates so the guaranteed characters are not always in front.
	for i := len(buf) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return "", err
		}
		buf[i], buf[j.Int64()] = buf[j.Int64()], buf[i]
	}
	return string(buf), nil
}

func randomChar(set string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, err
	}
	return set[n.Int64()], nil
}

func validationError(format string, a ...interface{}) error {
	return exception.NewBatchErrorf(moduleName, exception.KindValidation, format, a...)
}
