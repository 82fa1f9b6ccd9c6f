package backend

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/milosgajdos/go-control/symbolic"
)

// Serve reads one Request from r, differentiates it with d and writes one
// Response to w. Failures are reported in Response.Error; the returned error
// is non-nil only if the response could not be written.
func Serve(r io.Reader, w io.Writer, d symbolic.Differentiator) error {
	resp := handle(r, d)
	return json.NewEncoder(w).Encode(resp)
}

func handle(r io.Reader, d symbolic.Differentiator) *Response {
	req := new(Request)
	if err := json.NewDecoder(r).Decode(req); err != nil {
		return fail("parse", err)
	}

	fns, err := symbolic.ParseVector(req.Functions)
	if err != nil {
		return fail("parse", err)
	}

	resp := new(Response)
	if req.Has(Gradient) {
		for _, f := range fns {
			g, err := d.Gradient(f, req.Variables)
			if err != nil {
				return fail("other", err)
			}
			resp.Gradient = append(resp.Gradient, exprStrings(g))
		}
	}

	if req.Has(Jacobian) {
		j, err := d.Jacobian(fns, req.Variables)
		if err != nil {
			return fail("other", err)
		}
		resp.Jacobian = matrixStrings(j)
	}

	if req.Has(Hessian) {
		for _, f := range fns {
			h, err := d.Hessian(f, req.Variables)
			if err != nil {
				return fail("other", err)
			}
			resp.Hessian = append(resp.Hessian, matrixStrings(h))
		}
	}

	return resp
}

func fail(code string, err error) *Response {
	if errors.Is(err, symbolic.ErrNotFound) || errors.Is(err, symbolic.ErrUnknownVar) {
		code = "not_found"
	}
	return &Response{Error: &ErrorDTO{Code: code, Message: err.Error()}}
}

func exprStrings(v symbolic.Vector) []string {
	out := make([]string, len(v))
	for i, e := range v {
		out[i] = e.String()
	}
	return out
}

func matrixStrings(m *symbolic.Matrix) [][]string {
	r, _ := m.Dims()
	out := make([][]string, r)
	for i := range out {
		out[i] = exprStrings(m.Row(i))
	}
	return out
}
