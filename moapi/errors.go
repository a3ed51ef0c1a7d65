package moapi

import (
	"github.com/serum-errors/go-serum"
)

// Error codes used throughout moorage.
//
// The lifecycle codes (not-deployed, obsolete) are usage errors: retrying
// without an external state change cannot succeed.  The remote-read and
// remote-write codes wrap transport failures and are safe to retry, because
// a failed read caches nothing and a failed write clears no dirty flags.
const (
	CodeNotDeployed      = "moorage-error-not-deployed"
	CodeObsolete         = "moorage-error-obsolete"
	CodeRemoteRead       = "moorage-error-remote-read"
	CodeRemoteWrite      = "moorage-error-remote-write"
	CodeSchemaResolution = "moorage-error-schema-resolution"
	CodeUnknownScheme    = "moorage-error-unknown-scheme"
	CodeDepthExceeded    = "moorage-error-depth-exceeded"
	CodeSerialization    = "moorage-error-serialization"
	CodeInvalid          = "moorage-error-invalid"
)

// ErrorNotDeployed is returned when remote access is attempted on a record
// whose creation has not yet been confirmed.
//
// Errors:
//
//    - moorage-error-not-deployed --
func ErrorNotDeployed(operation string, subject string) error {
	result := serum.Errorf(CodeNotDeployed,
		"cannot %s %s: the remote record is not deployed yet", operation, subject)
	addDetails(result, [][2]string{
		{"operation", operation},
		{"subject", subject},
	})
	return result
}

// ErrorObsolete is returned when any access is attempted on a record whose
// destruction has been confirmed.
//
// Errors:
//
//    - moorage-error-obsolete --
func ErrorObsolete(operation string, subject string) error {
	result := serum.Errorf(CodeObsolete,
		"cannot %s %s: the remote record is obsolete", operation, subject)
	addDetails(result, [][2]string{
		{"operation", operation},
		{"subject", subject},
	})
	return result
}

// ErrorRemoteRead wraps any failure of a remote getter or an off-chain
// adapter download.  The subject names what was being read: a field name,
// or a document URI.
//
// Errors:
//
//    - moorage-error-remote-read --
func ErrorRemoteRead(subject string, cause error) error {
	result := serum.Errorf(CodeRemoteRead,
		"remote read of %s failed: %w", subject, cause)
	addDetails(result, [][2]string{
		{"subject", subject},
	})
	return result
}

// ErrorRemoteWrite wraps any failure of a remote setter.  The fields covered
// by the failed setter remain dirty, so a recommit will retry them.
//
// Errors:
//
//    - moorage-error-remote-write --
func ErrorRemoteWrite(group string, cause error) error {
	result := serum.Errorf(CodeRemoteWrite,
		"remote write for setter group %q failed: %w", group, cause)
	addDetails(result, [][2]string{
		{"group", group},
	})
	return result
}

// ErrorSchemaResolution is returned when a field declared as a storage
// pointer holds a value that is not a well-formed URI.
//
// Errors:
//
//    - moorage-error-schema-resolution --
func ErrorSchemaResolution(field string, rawValue string, cause error) error {
	result := serum.Errorf(CodeSchemaResolution,
		"field %q is declared as a storage pointer but its value %q is not a usable URI: %w", field, rawValue, cause)
	addDetails(result, [][2]string{
		{"field", field},
		{"rawValue", rawValue},
	})
	return result
}

// ErrorUnknownScheme is returned when no adapter is registered for a URI's
// scheme.  This is a configuration error; retrying cannot help.
//
// Errors:
//
//    - moorage-error-unknown-scheme --
func ErrorUnknownScheme(scheme string) error {
	result := serum.Errorf(CodeUnknownScheme,
		"no off-chain adapter registered for scheme %q", scheme)
	addDetails(result, [][2]string{
		{"scheme", scheme},
	})
	return result
}

// ErrorDepthExceeded is returned when resolving a document graph descends
// past the configured depth budget, which usually means the schema declares
// a cyclic graph.
//
// Errors:
//
//    - moorage-error-depth-exceeded --
func ErrorDepthExceeded(uri URI, maxDepth int) error {
	result := serum.Errorf(CodeDepthExceeded,
		"resolving %q exceeds the maximum pointer depth of %d; the document graph may be cyclic", uri, maxDepth)
	addDetails(result, [][2]string{
		{"uri", string(uri)},
	})
	return result
}

// ErrorSerialization is returned when document bytes cannot be parsed as a
// JSON map.
//
// Errors:
//
//    - moorage-error-serialization --
func ErrorSerialization(context string, cause error) error {
	return serum.Errorf(CodeSerialization, "serialization failed: %s: %w", context, cause)
}

// ErrorInvalid is returned for usage errors: unknown field names, lifecycle
// transitions taken out of order, malformed URIs handed to constructors.
// The caller must format the message string.
//
// Errors:
//
//    - moorage-error-invalid --
func ErrorInvalid(message string, deets ...[2]string) error {
	result := serum.Error(CodeInvalid, serum.WithMessageLiteral(message))
	addDetails(result, deets)
	return result
}

// addDetails is a helper to get around the fact that doing a type coercion
// within serum.Errorf arguments is awkward.
func addDetails(err error, details [][2]string) {
	s := err.(*serum.ErrorValue)
	s.Data.Details = append(s.Data.Details, details...)
}
