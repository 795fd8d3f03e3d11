package invoke

import "bytes"

// GuardrailRef identifies a safety policy the remote service applies to a request.
// It is passed through to the transport untouched.
type GuardrailRef struct {
	ID      string
	Version string
}

// Request describes one model invocation.
//
// Body is the serialized prompt payload. Its shape is agreed between the caller and the
// Transport; the core never inspects it. A Request is copied when it is submitted, so
// later changes made by the caller do not reach an in-flight Session.
type Request struct {
	ModelID   string
	Body      []byte
	Guardrail *GuardrailRef
}

// Validate reports the first missing required field as an *InvalidRequestErr.
func (r Request) Validate() error {
	if r.ModelID == "" {
		return &InvalidRequestErr{Field: "ModelID", Reason: "must not be empty"}
	}
	if len(r.Body) == 0 {
		return &InvalidRequestErr{Field: "Body", Reason: "must not be empty"}
	}
	if r.Guardrail != nil && r.Guardrail.ID == "" {
		return &InvalidRequestErr{Field: "Guardrail", Reason: "id must not be empty"}
	}
	return nil
}

func (r Request) clone() Request {
	c := Request{ModelID: r.ModelID, Body: bytes.Clone(r.Body)}
	if r.Guardrail != nil {
		g := *r.Guardrail
		c.Guardrail = &g
	}
	return c
}
