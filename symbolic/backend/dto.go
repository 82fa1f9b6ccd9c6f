// Package backend implements an out-of-process differentiation service.
//
// A backend is any executable that reads one JSON encoded Request from its
// standard input and writes one JSON encoded Response to its standard
// output. Client calls such an executable; Serve implements the backend side
// on top of any symbolic.Differentiator.
package backend

// Kind is a requested derivative kind.
type Kind string

const (
	// Gradient requests the gradient of every function.
	Gradient Kind = "gradient"
	// Jacobian requests the Jacobian of the function vector.
	Jacobian Kind = "jacobian"
	// Hessian requests the Hessian of every function.
	Hessian Kind = "hessian"
)

// Request asks the backend to differentiate Functions with respect to Variables.
type Request struct {
	// Functions are infix expression strings
	Functions []string `json:"functions"`
	// Variables are the differentiation variables in order
	Variables []string `json:"variables"`
	// Derivatives are the requested derivative kinds
	Derivatives []Kind `json:"derivatives"`
}

// Response carries derivatives as nested expression strings.
type Response struct {
	// Gradient holds one gradient vector per function
	Gradient [][]string `json:"gradient,omitempty"`
	// Jacobian is the Jacobian of the function vector
	Jacobian [][]string `json:"jacobian,omitempty"`
	// Hessian holds one Hessian matrix per function
	Hessian [][][]string `json:"hessian,omitempty"`
	// Error is set when the backend failed
	Error *ErrorDTO `json:"error,omitempty"`
}

// ErrorDTO is a backend reported failure.
type ErrorDTO struct {
	// Code is one of "not_found", "parse", "other"
	Code string `json:"code"`
	// Message describes the failure
	Message string `json:"message"`
}

// Has reports whether kind was requested.
func (r *Request) Has(kind Kind) bool {
	for _, k := range r.Derivatives {
		if k == kind {
			return true
		}
	}
	return false
}
