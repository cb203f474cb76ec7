package sessioncheck

import "errors"

// Construction-time errors. These indicate programmer error in the supplied
// configuration and are never retried.
var (
	ErrHandlerRequired = errors.New("sessioncheck: invalid-session handler is required")

	ErrClientIDRequired = errors.New("sessioncheck: client id is required for standards-based checks")

	ErrAuthorizationEndpointRequired = errors.New("sessioncheck: authorization endpoint or issuer is required")

	ErrRedirectURIRequired = errors.New("sessioncheck: redirect URI or page URL is required")

	// ErrIDTokenRequired: the response_type=none flow carries no token in
	// the response, so the hint token must be supplied up front.
	ErrIDTokenRequired = errors.New(`sessioncheck: response type "none" requires an id token`)

	ErrInvalidResponseType = errors.New("sessioncheck: unsupported response type")

	ErrValidationEndpointRequired = errors.New("sessioncheck: validation endpoint base is required for trusted-token checks")
)
