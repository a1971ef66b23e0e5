// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package cloud

import "fmt"

// OutputFormat is the format of an assembled document. Native, the format of
// the template itself, is the zero value.
type OutputFormat int

const (
	Native OutputFormat = iota
	None
	Answers
	PDF
	HTML
	PlainText
	HTMLwDataURIs
	MHTML
	RTF
	DOCX
	WPD
	HPD
	HFD
	JPEG
	PNG
)

var outputFormats = [...]string{
	Native:        "Native",
	None:          "None",
	Answers:       "Answers",
	PDF:           "PDF",
	HTML:          "HTML",
	PlainText:     "PlainText",
	HTMLwDataURIs: "HTMLwDataURIs",
	MHTML:         "MHTML",
	RTF:           "RTF",
	DOCX:          "DOCX",
	WPD:           "WPD",
	HPD:           "HPD",
	HFD:           "HFD",
	JPEG:          "JPEG",
	PNG:           "PNG",
}

// String returns the wire name of the format.
func (f OutputFormat) String() string {
	if f < 0 || int(f) >= len(outputFormats) {
		return fmt.Sprintf("OutputFormat(%d)", int(f))
	}
	return outputFormats[f]
}

// ParseOutputFormat returns the format with the given wire name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	for i, name := range outputFormats {
		if name == s {
			return OutputFormat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown output format %q", s)
}

// InterviewFormat is the runtime used to render an interview.
type InterviewFormat int

const (
	JavaScript InterviewFormat = iota
	Silverlight
	Unspecified
)

var interviewFormats = [...]string{
	JavaScript:  "JavaScript",
	Silverlight: "Silverlight",
	Unspecified: "Unspecified",
}

// String returns the wire name of the format.
func (f InterviewFormat) String() string {
	if f < 0 || int(f) >= len(interviewFormats) {
		return fmt.Sprintf("InterviewFormat(%d)", int(f))
	}
	return interviewFormats[f]
}

// ParseInterviewFormat returns the format with the given wire name.
func ParseInterviewFormat(s string) (InterviewFormat, error) {
	for i, name := range interviewFormats {
		if name == s {
			return InterviewFormat(i), nil
		}
	}
	return 0, fmt.Errorf("unknown interview format %q", s)
}
