/*
Package utils provides helper functions for the sentiment backend.
*/
package utils

import (
	"crypto/rand"
	"time"
)

const requestIDCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRequestID generates a unique request ID
func GenerateRequestID() string {
	return time.Now().Format("20060102150405") + "-" + RandomString(8)
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp-derived suffix rather than panic in a logging path.
		return time.Now().Format("150405.000000000")[:length]
	}
	for i := range b {
		b[i] = requestIDCharset[int(b[i])%len(requestIDCharset)]
	}
	return string(b)
}
