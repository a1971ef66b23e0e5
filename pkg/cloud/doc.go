// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package cloud is a client for the HotDocs Cloud Services document API.
//
// Every request is signed: the timestamp, the subscriber ID and the request
// parameters are canonicalized and signed with the subscriber's key (see
// pkg/hmac). Requests that name a package the service has not cached are
// retried after uploading the package.
//
// Assembly results are usually multipart responses with one part per
// document. SendTo streams them through the bounded multipart parser into a
// directory, so documents of any size are written without being buffered:
//
//	client, err := cloud.New(cloud.Config{
//		SubscriberID: "example",
//		SigningKey:   key,
//	})
//	if err != nil {
//		return err
//	}
//	req := &cloud.AssembleDocument{
//		Package:  cloud.Package{ID: "ed40775b", Source: cloud.FileSource("pkg.zip")},
//		Template: "letter.docx",
//		Answers:  answers,
//		Format:   cloud.PDF,
//	}
//	status, err := client.SendTo(ctx, req, "out")
package cloud
