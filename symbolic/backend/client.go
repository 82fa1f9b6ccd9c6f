package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/milosgajdos/go-control/symbolic"
)

var (
	// ErrNotFound is returned when the backend executable cannot be found.
	ErrNotFound = errors.New("backend: executable not found")
	// ErrParse is returned when a backend reply cannot be decoded or parsed.
	ErrParse = errors.New("backend: parse error")
)

// Error is a failure reported by the backend or by running it.
type Error struct {
	// Message describes the failure
	Message string
}

// Error implements error.
func (e *Error) Error() string { return "backend: " + e.Message }

// Client runs a differentiation backend as a subprocess.
// Each call starts a fresh process. Failed calls are not retried.
type Client struct {
	// Path is the backend executable path
	Path string
	// Args are passed to the executable
	Args []string
	// Env is appended to the subprocess environment
	Env []string
	// Timeout bounds every call; zero means no timeout
	Timeout time.Duration
}

// NewClient creates new Client for the executable found at path or on PATH.
// It returns ErrNotFound if the executable does not exist.
func NewClient(path string, args ...string) (*Client, error) {
	p, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	return &Client{Path: p, Args: args}, nil
}

// Call sends req to the backend and returns its response.
func (c *Client) Call(ctx context.Context, req *Request) (*Response, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	in, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Message: err.Error()}
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, c.Path)
		}
		return nil, &Error{Message: fmt.Sprintf("%v: %s", err, bytes.TrimSpace(stderr.Bytes()))}
	}

	resp := new(Response)
	if err := json.Unmarshal(stdout.Bytes(), resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	if resp.Error != nil {
		switch resp.Error.Code {
		case "not_found":
			return nil, fmt.Errorf("%w: %s", ErrNotFound, resp.Error.Message)
		case "parse":
			return nil, fmt.Errorf("%w: %s", ErrParse, resp.Error.Message)
		}
		return nil, &Error{Message: resp.Error.Message}
	}

	return resp, nil
}

func (c *Client) request(fns symbolic.Vector, vars []string, kind Kind) (*Response, error) {
	funcs := make([]string, len(fns))
	for i, f := range fns {
		funcs[i] = f.String()
	}
	return c.Call(context.Background(), &Request{
		Functions:   funcs,
		Variables:   vars,
		Derivatives: []Kind{kind},
	})
}

// Gradient implements symbolic.Differentiator.
func (c *Client) Gradient(e symbolic.Expr, vars []string) (symbolic.Vector, error) {
	resp, err := c.request(symbolic.Vector{e}, vars, Gradient)
	if err != nil {
		return nil, err
	}
	if len(resp.Gradient) != 1 {
		return nil, fmt.Errorf("%w: expected 1 gradient, got %d", ErrParse, len(resp.Gradient))
	}
	g, err := symbolic.ParseVector(resp.Gradient[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return g, nil
}

// Jacobian implements symbolic.Differentiator.
func (c *Client) Jacobian(v symbolic.Vector, vars []string) (*symbolic.Matrix, error) {
	resp, err := c.request(v, vars, Jacobian)
	if err != nil {
		return nil, err
	}
	if len(resp.Jacobian) != len(v) {
		return nil, fmt.Errorf("%w: expected %d jacobian rows, got %d", ErrParse, len(v), len(resp.Jacobian))
	}
	m, err := symbolic.ParseMatrix(resp.Jacobian)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return m, nil
}

// Hessian implements symbolic.Differentiator.
func (c *Client) Hessian(e symbolic.Expr, vars []string) (*symbolic.Matrix, error) {
	resp, err := c.request(symbolic.Vector{e}, vars, Hessian)
	if err != nil {
		return nil, err
	}
	if len(resp.Hessian) != 1 {
		return nil, fmt.Errorf("%w: expected 1 hessian, got %d", ErrParse, len(resp.Hessian))
	}
	m, err := symbolic.ParseMatrix(resp.Hessian[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return m, nil
}
