package director

import "errors"

// Sentinel errors for director operations.
// Wrap with fmt.Errorf("%w: ...") to add context, check with errors.Is.
var (
	// ErrRequestFailed indicates an HTTP request to the Director failed.
	ErrRequestFailed = errors.New("director: request failed")

	// ErrBadToken indicates the Director rejected the bearer token.
	ErrBadToken = errors.New("director: bearer token rejected")

	// ErrBadCredentials indicates the account service rejected the credentials.
	ErrBadCredentials = errors.New("director: bad account credentials")

	// ErrInvalidCategory indicates an unknown item category was requested.
	ErrInvalidCategory = errors.New("director: invalid category")

	// ErrUnexpectedStatus indicates a non-success HTTP status from the Director.
	ErrUnexpectedStatus = errors.New("director: unexpected response status")

	// ErrTokenRefresh indicates the token manager could not obtain a fresh token.
	ErrTokenRefresh = errors.New("director: token refresh failed")

	// ErrNotConnected indicates the event feed is not connected.
	ErrNotConnected = errors.New("director: websocket not connected")

	// ErrAlreadyStarted indicates Start was called twice on the event client.
	ErrAlreadyStarted = errors.New("director: event client already started")

	// ErrNoController indicates the account has no registered controller.
	ErrNoController = errors.New("director: no controller on account")
)
