// File: utils/constants.go
package utils

import "time"

// AuthCachePrefix is the prefix used for Redis authorization cache keys.
const AuthCachePrefix = "auth:"

// AuthCacheTTL is the time-to-live for authorization cache entries.
const AuthCacheTTL = 10 * time.Minute

// LookupCachePrefix namespaces cached public verification results.
const LookupCachePrefix = "verify:"

// BearerTokenTTL is the lifetime of tokens minted by the issue-token command.
const BearerTokenTTL = 24 * time.Hour
