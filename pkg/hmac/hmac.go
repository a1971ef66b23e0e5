// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package hmac signs document service requests.
//
// Request parameters are first reduced to a canonical string and then
// signed with HMAC-SHA1 using the subscriber's signing key. The canonical
// form is:
//   - strings as-is, even when they contain '\n'
//   - integers in base 10
//   - bools as "True" or "False"
//   - time.Time in UTC as "2006-01-02T15:04:05Z"
//   - enums (fmt.Stringer) by name
//   - map[string]string sorted by key, one "key=value\n" entry per element
//   - nil and every other type as an empty string
//
// Parameters are separated by '\n' and the trailing '\n' is dropped.
package hmac

import (
	chmac "crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the canonical timestamp layout.
const TimeLayout = "2006-01-02T15:04:05Z"

// Canonicalize reduces params to the string that is signed.
func Canonicalize(params ...any) string {
	var sb strings.Builder
	for _, p := range params {
		switch v := p.(type) {
		case string:
			sb.WriteString(v)
		case int:
			sb.WriteString(strconv.Itoa(v))
		case int32:
			sb.WriteString(strconv.FormatInt(int64(v), 10))
		case int64:
			sb.WriteString(strconv.FormatInt(v, 10))
		case uint:
			sb.WriteString(strconv.FormatUint(uint64(v), 10))
		case uint32:
			sb.WriteString(strconv.FormatUint(uint64(v), 10))
		case uint64:
			sb.WriteString(strconv.FormatUint(v, 10))
		case bool:
			if v {
				sb.WriteString("True")
			} else {
				sb.WriteString("False")
			}
		case time.Time:
			sb.WriteString(v.UTC().Format(TimeLayout))
		case map[string]string:
			if len(v) > 0 {
				writeMap(&sb, v)
				// Entries carry their own separators.
				continue
			}
		case fmt.Stringer:
			sb.WriteString(v.String())
		}
		sb.WriteByte('\n')
	}

	s := sb.String()
	if len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}

func writeMap(sb *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(m[k])
		sb.WriteByte('\n')
	}
}

// Sign returns the base64 HMAC-SHA1 of the canonical form of params.
func Sign(key string, params ...any) string {
	mac := chmac.New(sha1.New, []byte(key))
	mac.Write([]byte(Canonicalize(params...)))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
