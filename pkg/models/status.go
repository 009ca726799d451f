package models

// MerchantStatus represents where a merchant is in the resolve lifecycle
type MerchantStatus string

const (
	MerchantStatusUnset      MerchantStatus = ""           // Zero value = unset/unknown
	MerchantStatusPending    MerchantStatus = "pending"    // Imported, not yet resolved
	MerchantStatusProcessing MerchantStatus = "processing" // Resolve in progress
	MerchantStatusDone       MerchantStatus = "done"       // Domain resolved
	MerchantStatusError      MerchantStatus = "error"      // No candidate domain responded
)

// String implements fmt.Stringer for logging
func (s MerchantStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s MerchantStatus) IsValid() bool {
	switch s {
	case MerchantStatusPending, MerchantStatusProcessing, MerchantStatusDone, MerchantStatusError:
		return true
	}
	return false
}

// ExtractionSource tags where a product sample's rating came from
type ExtractionSource string

const (
	SourceUnset          ExtractionSource = ""
	SourceStructuredData ExtractionSource = "structured-data"
	SourceWidget         ExtractionSource = "widget-heuristic"
	SourceManual         ExtractionSource = "manual"
)

// String implements fmt.Stringer for logging
func (s ExtractionSource) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// EmailType classifies a contact address
type EmailType string

const (
	EmailPersonal EmailType = "personal"
	EmailGeneric  EmailType = "generic"
)

// VerificationStatus is the normalized verdict of an external email verifier
type VerificationStatus string

const (
	VerificationUnset      VerificationStatus = ""
	VerificationValid      VerificationStatus = "valid"
	VerificationInvalid    VerificationStatus = "invalid"
	VerificationCatchAll   VerificationStatus = "catch_all"
	VerificationUnknown    VerificationStatus = "unknown"
	VerificationRisky      VerificationStatus = "risky"
	VerificationDisposable VerificationStatus = "disposable"
)

// NormalizeVerification maps a provider-specific result string onto a VerificationStatus
func NormalizeVerification(raw string) VerificationStatus {
	switch raw {
	case "ok", "valid", "good", "passed", "safe_to_send", "deliverable":
		return VerificationValid
	case "invalid", "bad", "failed", "undeliverable":
		return VerificationInvalid
	case "catch-all", "catch_all", "catchall", "accept_all":
		return VerificationCatchAll
	case "risky":
		return VerificationRisky
	case "disposable":
		return VerificationDisposable
	}
	return VerificationUnknown
}
