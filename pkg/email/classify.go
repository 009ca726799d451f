// Package email discovers contact addresses on storefront pages and classifies them.
package email

import (
	"regexp"
	"strings"

	"github.com/Sriram-PR/ratings-crawler/pkg/models"
)

var genericLocalParts = map[string]struct{}{}

func init() {
	for _, p := range []string{
		"info", "contact", "support", "help", "sales", "hello", "hi", "team", "careers", "jobs",
		"press", "media", "pr", "privacy", "legal", "admin", "orders", "service", "customer",
		"customerservice", "returns", "shipping", "billing", "refunds",
	} {
		genericLocalParts[p] = struct{}{}
	}
}

var (
	validSyntax  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	dottedName   = regexp.MustCompile(`^[a-z]+\.[a-z]+$`)
	joinedTokens = regexp.MustCompile(`[a-z]+[-_][a-z]+`)
)

// ValidSyntax is a permissive address shape check
func ValidSyntax(addr string) bool {
	return validSyntax.MatchString(addr)
}

// Classify labels an address personal or generic from its local part
func Classify(addr string) models.EmailType {
	local, _, _ := strings.Cut(strings.ToLower(addr), "@")
	switch {
	case isGeneric(local):
		return models.EmailGeneric
	case dottedName.MatchString(local), joinedTokens.MatchString(local):
		return models.EmailPersonal
	case len(local) <= 4:
		return models.EmailGeneric
	}
	return models.EmailPersonal
}

func isGeneric(local string) bool {
	_, ok := genericLocalParts[local]
	return ok
}

// Domain returns the part after '@', or "" when there is none
func Domain(addr string) string {
	_, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return ""
	}
	return strings.TrimSpace(domain)
}
