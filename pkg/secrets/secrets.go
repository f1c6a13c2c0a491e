// Package secrets resolves provider credentials once at process start.
package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"
)

// ParameterGetter is the subset of the SSM API used here.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Spec names one secret: a literal value wins over the parameter name.
type Spec struct {
	Name  string
	Value string
	Param string
}

// Resolver reads SecureString parameters from SSM Parameter Store.
type Resolver struct {
	ssm    ParameterGetter
	logger *zap.Logger
}

// NewResolver creates a resolver. ssm may be nil when every secret is given literally.
func NewResolver(ssm ParameterGetter, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{ssm: ssm, logger: logger}
}

// Resolve returns the secret value for spec.
func (r *Resolver) Resolve(ctx context.Context, spec Spec) (string, error) {
	if spec.Value != "" {
		return spec.Value, nil
	}
	if spec.Param == "" {
		return "", fmt.Errorf("secret %s: no value or parameter configured", spec.Name)
	}
	if r.ssm == nil {
		return "", fmt.Errorf("secret %s: parameter store unavailable", spec.Name)
	}
	out, err := r.ssm.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(spec.Param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secret %s: get parameter %s: %w", spec.Name, spec.Param, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("secret %s: parameter %s is empty", spec.Name, spec.Param)
	}
	r.logger.Info("secret resolved from parameter store", zap.String("secret", spec.Name), zap.String("param", spec.Param))
	return aws.ToString(out.Parameter.Value), nil
}

// ResolveAll resolves every spec and returns values keyed by name.
func (r *Resolver) ResolveAll(ctx context.Context, specs ...Spec) (map[string]string, error) {
	values := make(map[string]string, len(specs))
	var errs []error
	for _, spec := range specs {
		v, err := r.Resolve(ctx, spec)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[spec.Name] = v
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}
