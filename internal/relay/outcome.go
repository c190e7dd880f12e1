// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import "net/http"

// Resource is a successfully retrieved device response.
type Resource struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	ContentType string
	// Strategy is the credential presentation the device accepted.
	Strategy Strategy
}

// Outcome is the result of a single strategy attempt: exactly one of
// Resource or Err is set. An Err of KindAuthRejected means "try the next
// strategy"; any other kind is a failure.
type Outcome struct {
	Strategy Strategy
	Resource *Resource
	Err      *FetchError
}

func (o Outcome) Succeeded() bool { return o.Resource != nil }

func (o Outcome) Rejected() bool {
	return o.Err != nil && o.Err.Kind == KindAuthRejected
}

// label is the low-cardinality result name used for metrics and logs.
func (o Outcome) label() string {
	if o.Resource != nil {
		return "success"
	}
	if o.Err == nil {
		return "internal"
	}
	return o.Err.Kind.String()
}

func success(s Strategy, resp *deviceResponse) Outcome {
	return Outcome{
		Strategy: s,
		Resource: &Resource{
			StatusCode:  resp.status,
			Header:      resp.header,
			Body:        resp.body,
			ContentType: resp.header.Get("Content-Type"),
			Strategy:    s,
		},
	}
}

func failure(s Strategy, kind ErrorKind, err error) Outcome {
	return Outcome{Strategy: s, Err: &FetchError{Kind: kind, Strategy: s, Err: err}}
}

// classifyStatus folds a device response into an outcome: 2xx succeeds,
// 401 and 403 are credential rejections, everything else is terminal.
func classifyStatus(s Strategy, resp *deviceResponse) Outcome {
	switch {
	case resp.status >= 200 && resp.status <= 299:
		return success(s, resp)
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return Outcome{Strategy: s, Err: &FetchError{
			Kind:     KindAuthRejected,
			Strategy: s,
			Status:   resp.status,
			Reason:   resp.reason,
		}}
	default:
		return Outcome{Strategy: s, Err: &FetchError{
			Kind:     KindUpstreamStatus,
			Strategy: s,
			Status:   resp.status,
			Reason:   resp.reason,
		}}
	}
}
