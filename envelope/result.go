package envelope

import (
	"encoding/json"
	"fmt"
)

// Result classifies a verification.
type Result int

// The zero Result is not a valid outcome, so an uninitialized Outcome is
// never mistaken for success.
const (
	Valid Result = iota + 1
	InvalidSignature
	MalformedEnvelope
	UnsupportedAlgorithm
)

var resultNames = map[Result]string{
	Valid:                "valid",
	InvalidSignature:     "invalid_signature",
	MalformedEnvelope:    "malformed_envelope",
	UnsupportedAlgorithm: "unsupported_algorithm",
}

func (r Result) String() string {
	if name, ok := resultNames[r]; ok {
		return name
	}

	return fmt.Sprintf("result(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r Result) MarshalText() ([]byte, error) {
	name, ok := resultNames[r]
	if !ok {
		return nil, fmt.Errorf("envelope: unknown result %d", int(r))
	}

	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Result) UnmarshalText(text []byte) error {
	for res, name := range resultNames {
		if name == string(text) {
			*r = res
			return nil
		}
	}

	return fmt.Errorf("envelope: unknown result %q", text)
}

// Outcome is the structured answer of a verification. Reason explains any
// result other than Valid.
type Outcome struct {
	Result Result
	Reason error
}

// Valid reports whether the envelope verified.
func (o Outcome) Valid() bool {
	return o.Result == Valid
}

func (o Outcome) String() string {
	if o.Reason == nil {
		return o.Result.String()
	}

	return o.Result.String() + ": " + o.Reason.Error()
}

// MarshalJSON renders the outcome as {"result": ..., "reason": ...}.
func (o Outcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Result Result `json:"result"`
		Reason string `json:"reason,omitempty"`
	}{Result: o.Result}

	if o.Reason != nil {
		out.Reason = o.Reason.Error()
	}

	return json.Marshal(out)
}

func outcome(r Result, reason error) Outcome {
	return Outcome{Result: r, Reason: reason}
}
