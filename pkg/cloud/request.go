// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// Request describes one document service call.
type Request interface {
	// Method is the HTTP method.
	Method() string
	// PathPrefix is the service path before the subscriber ID.
	PathPrefix() string
	// Query is the encoded query string, possibly empty.
	Query() string
	// PackageID is appended to the path when not empty.
	PackageID() string
	// TemplateName is appended to the path after the package ID when not empty.
	TemplateName() string
	// HMACParams are the request parameters covered by the signature,
	// following the timestamp and subscriber ID.
	HMACParams() []any
	// Content is the request body, or nil.
	Content() Source
	// PackageSource is uploaded when the service does not have the package
	// cached. Nil disables the upload.
	PackageSource() Source
}

// Package identifies a template package and where to upload it from.
type Package struct {
	ID     string
	Source Source
}

// AssembleDocument assembles a document from a template and answers.
type AssembleDocument struct {
	Package    Package
	Template   string
	BillingRef string
	Answers    string
	Format     OutputFormat
	Settings   map[string]string
}

var _ Request = (*AssembleDocument)(nil)

func (r *AssembleDocument) Method() string     { return http.MethodPost }
func (r *AssembleDocument) PathPrefix() string { return "/hdcs/assemble" }

func (r *AssembleDocument) Query() string {
	var q query
	q.add("format", r.Format.String())
	q.settings(r.Settings)
	return q.String()
}

func (r *AssembleDocument) PackageID() string     { return r.Package.ID }
func (r *AssembleDocument) TemplateName() string  { return r.Template }
func (r *AssembleDocument) Content() Source       { return answers(r.Answers) }
func (r *AssembleDocument) PackageSource() Source { return r.Package.Source }

func (r *AssembleDocument) HMACParams() []any {
	return []any{r.Package.ID, r.Template, false, r.BillingRef, r.Format, r.Settings}
}

// GetInterview requests the interview files for a template.
type GetInterview struct {
	Package         Package
	Template        string
	BillingRef      string
	Answers         string
	Format          InterviewFormat
	MarkedVariables []string
	TempImageURL    string
	Settings        map[string]string
}

var _ Request = (*GetInterview)(nil)

func (r *GetInterview) Method() string     { return http.MethodPost }
func (r *GetInterview) PathPrefix() string { return "/hdcs/interview" }

func (r *GetInterview) Query() string {
	var q query
	q.add("format", r.Format.String())
	if len(r.MarkedVariables) > 0 {
		q.add("markedvariables", strings.Join(r.MarkedVariables, ","))
	}
	if r.TempImageURL != "" {
		q.add("tempimageurl", r.TempImageURL)
	}
	q.settings(r.Settings)
	return q.String()
}

func (r *GetInterview) PackageID() string     { return r.Package.ID }
func (r *GetInterview) TemplateName() string  { return r.Template }
func (r *GetInterview) Content() Source       { return answers(r.Answers) }
func (r *GetInterview) PackageSource() Source { return r.Package.Source }

func (r *GetInterview) HMACParams() []any {
	return []any{r.Package.ID, r.Template, false, r.BillingRef, r.Format, r.TempImageURL, r.Settings}
}

// GetComponentInfo requests the variables and dialogs of a template.
type GetComponentInfo struct {
	Package        Package
	Template       string
	BillingRef     string
	IncludeDialogs bool
}

var _ Request = (*GetComponentInfo)(nil)

func (r *GetComponentInfo) Method() string     { return http.MethodGet }
func (r *GetComponentInfo) PathPrefix() string { return "/hdcs/componentinfo" }

func (r *GetComponentInfo) Query() string {
	if r.IncludeDialogs {
		return "includedialogs=true"
	}
	return ""
}

func (r *GetComponentInfo) PackageID() string     { return r.Package.ID }
func (r *GetComponentInfo) TemplateName() string  { return r.Template }
func (r *GetComponentInfo) Content() Source       { return nil }
func (r *GetComponentInfo) PackageSource() Source { return r.Package.Source }

func (r *GetComponentInfo) HMACParams() []any {
	return []any{r.Package.ID, r.Template, false, r.BillingRef, r.IncludeDialogs}
}

// CreateSession starts an embedded interview session.
type CreateSession struct {
	Package           Package
	BillingRef        string
	Answers           string
	InterviewFormat   InterviewFormat
	OutputFormat      OutputFormat
	Theme             string
	HideDownloadLinks bool
	Settings          map[string]string
}

var _ Request = (*CreateSession)(nil)

func (r *CreateSession) Method() string     { return http.MethodPost }
func (r *CreateSession) PathPrefix() string { return "/embed/newsession" }

func (r *CreateSession) Query() string {
	var q query
	q.add("interviewformat", r.InterviewFormat.String())
	q.add("outputformat", r.OutputFormat.String())
	if r.HideDownloadLinks {
		q.add("showdownloadlinks", "false")
	} else {
		q.add("showdownloadlinks", "true")
	}
	if r.BillingRef != "" {
		q.add("billingRef", r.BillingRef)
	}
	if r.Theme != "" {
		q.add("theme", r.Theme)
	}
	q.settings(r.Settings)
	return q.String()
}

func (r *CreateSession) PackageID() string     { return r.Package.ID }
func (r *CreateSession) TemplateName() string  { return "" }
func (r *CreateSession) Content() Source       { return answers(r.Answers) }
func (r *CreateSession) PackageSource() Source { return r.Package.Source }

func (r *CreateSession) HMACParams() []any {
	return []any{r.Package.ID, r.BillingRef, r.InterviewFormat, r.OutputFormat, r.Settings}
}

// ResumeSession resumes an embedded session from a snapshot. The package ID
// and billing reference are read from the snapshot itself.
type ResumeSession struct {
	Snapshot string
	// Package is uploaded if the service no longer has the snapshot's package.
	Package Source
}

var _ Request = (*ResumeSession)(nil)

func (r *ResumeSession) Method() string        { return http.MethodPost }
func (r *ResumeSession) PathPrefix() string    { return "/embed/resumesession" }
func (r *ResumeSession) Query() string         { return "" }
func (r *ResumeSession) PackageID() string     { return r.snapshot().PackageID }
func (r *ResumeSession) TemplateName() string  { return "" }
func (r *ResumeSession) Content() Source       { return StringSource(r.Snapshot) }
func (r *ResumeSession) PackageSource() Source { return r.Package }
func (r *ResumeSession) HMACParams() []any     { return []any{r.Snapshot} }

// BillingRef returns the billing reference stored in the snapshot.
func (r *ResumeSession) BillingRef() string {
	return r.snapshot().BillingRef
}

type snapshotInfo struct {
	PackageID  string `json:"PackageID"`
	BillingRef string `json:"BillingRef"`
}

// snapshot decodes the base64 JSON that precedes the '#' in a snapshot.
// Undecodable snapshots yield empty values.
func (r *ResumeSession) snapshot() snapshotInfo {
	encoded, _, _ := strings.Cut(r.Snapshot, "#")

	var info snapshotInfo
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return info
	}
	_ = json.Unmarshal(data, &info)
	return info
}

// UploadPackage stores a package in the service cache.
type UploadPackage struct {
	Package    Package
	BillingRef string
}

var _ Request = (*UploadPackage)(nil)

func (r *UploadPackage) Method() string        { return http.MethodPut }
func (r *UploadPackage) PathPrefix() string    { return "/hdcs" }
func (r *UploadPackage) Query() string         { return "" }
func (r *UploadPackage) PackageID() string     { return r.Package.ID }
func (r *UploadPackage) TemplateName() string  { return "" }
func (r *UploadPackage) Content() Source       { return r.Package.Source }
func (r *UploadPackage) PackageSource() Source { return nil }

func (r *UploadPackage) HMACParams() []any {
	return []any{r.Package.ID, nil, true, r.BillingRef}
}

func answers(s string) Source {
	if s == "" {
		return nil
	}
	return StringSource(s)
}

type query []string

func (q *query) add(key, value string) {
	*q = append(*q, url.QueryEscape(key)+"="+url.QueryEscape(value))
}

func (q *query) settings(m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.add(k, m[k])
	}
}

func (q query) String() string {
	return strings.Join(q, "&")
}
