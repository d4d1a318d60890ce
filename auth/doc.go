// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides token, ID and hashing utilities.

# Session Tokens

Session tokens are random 24-byte (192-bit) secrets:

	token, err := auth.GenerateSessionToken()

Tokens are URL-safe base64 encoded. The participant's browser keeps the token
and presents it on every request, which is what makes sessions resumable.

# ID Generation

Random hex IDs for database records:

	id, err := auth.GenerateID(16)  // 32 hex characters

# Content Hashes

Imported articles are de-duplicated on their (short ID, text) pair:

	hash := auth.ContentHash(shortID, text)

The hash backs a unique index, so re-importing the same rows is harmless.

# IP Hashing

For privacy-preserving duplicate detection:

	hash := auth.HashIP(ipAddress, salt)

Returns first 8 bytes (16 hex chars) of HMAC-SHA256.
*/
package auth
