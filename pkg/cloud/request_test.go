// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequests(t *testing.T) {
	settings := map[string]string{"z": "1", "k": "a&b"}

	tests := []struct {
		name     string
		req      Request
		method   string
		prefix   string
		query    string
		template string
		params   []any
		content  bool
	}{
		{
			name:     "assemble",
			req:      &AssembleDocument{Package: Package{ID: "p"}, Template: "t.docx", BillingRef: "b", Answers: "a", Format: DOCX, Settings: settings},
			method:   http.MethodPost,
			prefix:   "/hdcs/assemble",
			query:    "format=DOCX&k=a%26b&z=1",
			template: "t.docx",
			params:   []any{"p", "t.docx", false, "b", DOCX, settings},
			content:  true,
		},
		{
			name:     "assemble without answers",
			req:      &AssembleDocument{Package: Package{ID: "p"}},
			method:   http.MethodPost,
			prefix:   "/hdcs/assemble",
			query:    "format=Native",
			params:   []any{"p", "", false, "", Native, map[string]string(nil)},
			content:  false,
			template: "",
		},
		{
			name:     "interview",
			req:      &GetInterview{Package: Package{ID: "p"}, Template: "t", Format: Silverlight, MarkedVariables: []string{"A", "B"}, TempImageURL: "http://img"},
			method:   http.MethodPost,
			prefix:   "/hdcs/interview",
			query:    "format=Silverlight&markedvariables=A%2CB&tempimageurl=http%3A%2F%2Fimg",
			template: "t",
			params:   []any{"p", "t", false, "", Silverlight, "http://img", map[string]string(nil)},
		},
		{
			name:     "component info",
			req:      &GetComponentInfo{Package: Package{ID: "p"}, Template: "t", BillingRef: "b", IncludeDialogs: true},
			method:   http.MethodGet,
			prefix:   "/hdcs/componentinfo",
			query:    "includedialogs=true",
			template: "t",
			params:   []any{"p", "t", false, "b", true},
		},
		{
			name:    "create session",
			req:     &CreateSession{Package: Package{ID: "p"}, BillingRef: "b", Answers: "a", OutputFormat: PDF, Theme: "dark", HideDownloadLinks: true},
			method:  http.MethodPost,
			prefix:  "/embed/newsession",
			query:   "interviewformat=JavaScript&outputformat=PDF&showdownloadlinks=false&billingRef=b&theme=dark",
			params:  []any{"p", "b", JavaScript, PDF, map[string]string(nil)},
			content: true,
		},
		{
			name:    "upload",
			req:     &UploadPackage{Package: Package{ID: "p", Source: StringSource("zip")}},
			method:  http.MethodPut,
			prefix:  "/hdcs",
			params:  []any{"p", nil, true, ""},
			content: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.method, tt.req.Method())
			assert.Equal(t, tt.prefix, tt.req.PathPrefix())
			assert.Equal(t, tt.query, tt.req.Query())
			assert.Equal(t, "p", tt.req.PackageID())
			assert.Equal(t, tt.template, tt.req.TemplateName())
			assert.Equal(t, tt.params, tt.req.HMACParams())
			assert.Equal(t, tt.content, tt.req.Content() != nil)
		})
	}
}

func TestResumeSession_Snapshot(t *testing.T) {
	// {"PackageID":"p1","BillingRef":"b1"}
	r := &ResumeSession{Snapshot: "eyJQYWNrYWdlSUQiOiJwMSIsIkJpbGxpbmdSZWYiOiJiMSJ9#rest"}
	assert.Equal(t, "p1", r.PackageID())
	assert.Equal(t, "b1", r.BillingRef())
	assert.Equal(t, []any{r.Snapshot}, r.HMACParams())
	assert.Nil(t, r.PackageSource())

	bad := &ResumeSession{Snapshot: "not base64!#x"}
	assert.Empty(t, bad.PackageID())
	assert.Empty(t, bad.BillingRef())
}
