package policy

import "net/http"

// Kind identifies a policy or request failure class. The zero-ish KindOK
// marks a pass. String values are stable; Code renders the wire form.
type Kind string

const (
	KindOK                 Kind = "ok"
	KindMissingAPIKey      Kind = "missing_api_key"
	KindInvalidKeyFormat   Kind = "invalid_api_key_format"
	KindInvalidKeyChars    Kind = "invalid_api_key_chars"
	KindKeyNotFound        Kind = "api_key_not_found"
	KindKeyInactive        Kind = "api_key_inactive"
	KindAccountInactive    Kind = "user_account_inactive"
	KindBannedKeyword      Kind = "banned_keyword"
	KindTextTooLong        Kind = "text_too_long"
	KindExternalAPIBlocked Kind = "external_api_blocked"
	KindInternalError      Kind = "internal_error"
)

var kindCodes = map[Kind]string{
	KindMissingAPIKey:      "MISSING_API_KEY",
	KindInvalidKeyFormat:   "INVALID_API_KEY_FORMAT",
	KindInvalidKeyChars:    "INVALID_API_KEY_CHARS",
	KindKeyNotFound:        "API_KEY_NOT_FOUND",
	KindKeyInactive:        "API_KEY_INACTIVE",
	KindAccountInactive:    "USER_ACCOUNT_INACTIVE",
	KindBannedKeyword:      "BANNED_KEYWORD",
	KindTextTooLong:        "TEXT_TOO_LONG",
	KindExternalAPIBlocked: "EXTERNAL_API_BLOCKED",
	KindInternalError:      "INTERNAL_SERVER_ERROR",
}

// Code returns the stable SCREAMING_SNAKE error code for the kind, or ""
// for a pass.
func (k Kind) Code() string {
	return kindCodes[k]
}

// HTTPStatus maps the kind to its HTTP status: authentication failures are
// 401, request-content failures are 400, everything else is 500.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindOK:
		return http.StatusOK
	case KindMissingAPIKey, KindKeyNotFound, KindKeyInactive, KindAccountInactive:
		return http.StatusUnauthorized
	case KindInvalidKeyFormat, KindInvalidKeyChars, KindBannedKeyword, KindTextTooLong, KindExternalAPIBlocked:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
