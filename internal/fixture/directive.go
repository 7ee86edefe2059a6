package fixture

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kuitang/crossbrowser/internal/errs"
)

// DirectivePrefix marks a status directive for the grid, which reads it out of
// the argument of a no-op page evaluation.
const DirectivePrefix = "lambdatest_action: "

// ActionSetTestStatus is the only action the adapter sends.
const ActionSetTestStatus = "setTestStatus"

// StatusArguments carries the outcome. Remark is omitted when the test has no
// failure message.
type StatusArguments struct {
	Status Status  `json:"status"`
	Remark *string `json:"remark,omitempty"`
}

// StatusReport is the payload of a status directive.
type StatusReport struct {
	Action    string          `json:"action"`
	Arguments StatusArguments `json:"arguments"`
}

// NewStatusReport builds the report for info's current result.
func NewStatusReport(info *TestInfo) StatusReport {
	r := StatusReport{Action: ActionSetTestStatus}
	if info == nil {
		return r
	}
	res := info.Outcome()
	r.Arguments.Status = res.Status
	if res.Error != nil {
		remark := res.Error.Message
		r.Arguments.Remark = &remark
	}
	return r
}

// Directive serializes r with DirectivePrefix.
func Directive(r StatusReport) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return "", errs.Wrap(errs.Internal, "fixture: encode status report", err)
	}
	return DirectivePrefix + strings.TrimSuffix(buf.String(), "\n"), nil
}

// ParseDirective recovers the report carried by a directive string.
func ParseDirective(s string) (StatusReport, error) {
	payload, ok := strings.CutPrefix(s, DirectivePrefix)
	if !ok {
		return StatusReport{}, errs.New(errs.Invalid, "fixture: directive prefix missing")
	}
	if !gjson.Valid(payload) {
		return StatusReport{}, errs.New(errs.Invalid, "fixture: directive payload is not JSON")
	}

	parsed := gjson.Parse(payload)
	r := StatusReport{
		Action: parsed.Get("action").String(),
		Arguments: StatusArguments{
			Status: Status(parsed.Get("arguments.status").String()),
		},
	}
	if remark := parsed.Get("arguments.remark"); remark.Exists() {
		s := remark.String()
		r.Arguments.Remark = &s
	}
	return r, nil
}
