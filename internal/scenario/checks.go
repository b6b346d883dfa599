package scenario

import (
	"bytes"
	"fmt"
	"net/http"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/vuramp/vuramp/internal/config"
)

// Check is a compiled config.Check.
type Check struct {
	Name string
	eval func(resp *Response) (bool, error)
}

// CheckResult is the outcome of one check against one response. Err explains a
// failure when there is more to say than "predicate was false".
type CheckResult struct {
	Name   string
	Passed bool
	Err    error
}

// CompileCheck turns a declarative check into a predicate.
func CompileCheck(c config.Check) (Check, error) {
	name := c.DisplayName()
	chk := Check{Name: name}

	switch c.Type {
	case config.CheckStatus:
		want := c.Status
		chk.eval = func(resp *Response) (bool, error) {
			return resp.Status == want, nil
		}
	case config.CheckStatusIn:
		allowed := slices.Clone(c.StatusIn)
		chk.eval = func(resp *Response) (bool, error) {
			return slices.Contains(allowed, resp.Status), nil
		}
	case config.CheckLatencyBelow:
		limit := c.Max
		chk.eval = func(resp *Response) (bool, error) {
			return resp.Latency < limit, nil
		}
	case config.CheckBodyContains:
		needle := []byte(c.Contains)
		chk.eval = func(resp *Response) (bool, error) {
			return bytes.Contains(resp.Body, needle), nil
		}
	case config.CheckHeaderPresent:
		header := http.CanonicalHeaderKey(c.Header)
		chk.eval = func(resp *Response) (bool, error) {
			return len(resp.Header.Values(header)) > 0, nil
		}
	case config.CheckJSONPathExists:
		path := c.Path
		chk.eval = func(resp *Response) (bool, error) {
			if _, err := lookupJSON(name, resp, path); err != nil {
				return false, err
			}
			return true, nil
		}
	case config.CheckJSONPathEquals:
		path, want := c.Path, c.Value
		chk.eval = func(resp *Response) (bool, error) {
			res, err := lookupJSON(name, resp, path)
			if err != nil {
				return false, err
			}
			return res.String() == want, nil
		}
	default:
		return Check{}, fmt.Errorf("check %q: unsupported type %q", name, c.Type)
	}
	return chk, nil
}

func lookupJSON(check string, resp *Response, path string) (gjson.Result, error) {
	if !gjson.ValidBytes(resp.Body) {
		reason := "response body is not valid JSON"
		if resp.Truncated {
			reason = "response body was truncated and is not valid JSON"
		}
		return gjson.Result{}, &CheckEvaluationError{Check: check, Reason: reason}
	}
	res := gjson.GetBytes(resp.Body, path)
	if !res.Exists() {
		return gjson.Result{}, &CheckEvaluationError{Check: check, Reason: fmt.Sprintf("field %q not found", path)}
	}
	return res, nil
}

// Evaluate runs the check against resp. It never panics: a response that
// failed at the network level fails every check with its NetworkError, and a
// panicking predicate becomes a CheckEvaluationError.
func (c Check) Evaluate(resp *Response) (result CheckResult) {
	result.Name = c.Name
	if resp == nil {
		result.Err = &CheckEvaluationError{Check: c.Name, Reason: "no response"}
		return result
	}
	if resp.Err != nil {
		result.Err = resp.Err
		return result
	}
	defer func() {
		if r := recover(); r != nil {
			result.Passed = false
			result.Err = &CheckEvaluationError{Check: c.Name, Reason: fmt.Sprint(r)}
		}
	}()
	result.Passed, result.Err = c.eval(resp)
	return result
}

// EvaluateAll runs checks in declaration order.
func EvaluateAll(checks []Check, resp *Response) []CheckResult {
	if len(checks) == 0 {
		return nil
	}
	results := make([]CheckResult, len(checks))
	for i, chk := range checks {
		results[i] = chk.Evaluate(resp)
	}
	return results
}
