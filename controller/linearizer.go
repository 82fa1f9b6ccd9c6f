package controller

import (
	"errors"
	"fmt"

	control "github.com/milosgajdos/go-control"
	"github.com/milosgajdos/go-control/discretizer"
	"github.com/milosgajdos/go-control/linearize"
)

// NewLinearizer returns the linearizer a controller uses for discretizer d.
//
// Zero-order hold gives constant Jacobians. Explicit discretizers of symbolic
// models and unconstrained implicit discretizers are linearized symbolically
// with the parameter override in o. Every other discretizer is linearized
// with finite differences, which can not honour a parameter override.
func NewLinearizer(d control.Discretizer, o *Options) (linearize.Linearizer, error) {
	switch d := d.(type) {
	case *discretizer.ZOH:
		if len(o.Params) > 0 {
			return nil, fmt.Errorf("%w: linear models take no parameter override", control.ErrConfig)
		}
		return linearize.NewZOH(d), nil
	case *discretizer.Explicit:
		if _, err := d.Update(); err == nil {
			return symbolic(d, o)
		}
	case *discretizer.Implicit:
		if !d.Constrained() {
			return symbolic(d, o)
		}
	}

	if len(o.Params) > 0 {
		return nil, fmt.Errorf("%w: %T can not be linearized with a parameter override", control.ErrConfig, d)
	}

	return numeric(d, o.Dt)
}

func symbolic(d control.Discretizer, o *Options) (linearize.Linearizer, error) {
	var opts []linearize.Option
	if len(o.Params) > 0 {
		opts = append(opts, linearize.WithParams(o.Params))
	}

	lin, err := linearize.NewSymbolic(d, o.Dt, opts...)
	if err != nil {
		if errors.Is(err, control.ErrUnexpected) && len(o.Params) == 0 {
			return numeric(d, o.Dt)
		}
		return nil, err
	}

	return lin, nil
}

func numeric(d control.Discretizer, dt float64) (linearize.Linearizer, error) {
	lin, err := linearize.NewNumeric(d, dt)
	if err != nil {
		return nil, err
	}
	return lin, nil
}
