package policy

import "errors"

// ErrUnauthorizedConfigUpdate is returned when UpdateConfiguration is
// called without a valid PolicyAuthorizationToken.
var ErrUnauthorizedConfigUpdate = errors.New("policy: configuration update requires a valid authorization token")

// ErrUnsupportedVersion is returned when a PolicyConfiguration names a
// schema version this package does not know how to load.
var ErrUnsupportedVersion = errors.New("policy: unsupported configuration version")

// ErrEmptyConfiguration is returned when parsing a YAML document that does
// not contain a usable policy configuration.
var ErrEmptyConfiguration = errors.New("policy: empty configuration")
