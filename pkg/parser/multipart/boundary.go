// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package multipart

import (
	"errors"
	"fmt"
	"mime"
	"strings"
)

var (
	// ErrNotMultipart is returned for a Content-Type that is not multipart/*.
	ErrNotMultipart = errors.New("content type is not multipart")

	// ErrMissingBoundary is returned for a multipart Content-Type without a boundary parameter.
	ErrMissingBoundary = errors.New("multipart content type has no boundary")
)

// Boundary returns the boundary parameter of a multipart Content-Type value,
// e.g. `multipart/mixed; boundary="BOUNDARY1"`.
func Boundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotMultipart, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("%w: %s", ErrNotMultipart, mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return "", ErrMissingBoundary
	}
	return boundary, nil
}

// IsMultipart reports whether contentType names a multipart media type.
func IsMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}
