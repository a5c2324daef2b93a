package auth

import (
	"context"
	"errors"
)

var (
	// ErrCompanyMismatch indicates the resource belongs to a different company.
	ErrCompanyMismatch = errors.New("company mismatch")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
)

// CompanyOwnershipChecker validates company ownership of a resource.
type CompanyOwnershipChecker interface {
	EnsureCompanyOwnership(ctx context.Context, companyID, resourceID string) error
}

// CompanyResolver looks up the owning company of a stored resource.
type CompanyResolver interface {
	ResolveCompany(ctx context.Context, resourceID string) (string, error)
}

// CompanyChecker checks resource ownership through a resolver.
type CompanyChecker struct {
	resolver CompanyResolver
}

// NewCompanyChecker constructs a CompanyChecker.
func NewCompanyChecker(resolver CompanyResolver) *CompanyChecker {
	if resolver == nil {
		return nil
	}
	return &CompanyChecker{resolver: resolver}
}

// EnsureCompanyOwnership verifies the resource belongs to the company.
func (c *CompanyChecker) EnsureCompanyOwnership(ctx context.Context, companyID, resourceID string) error {
	if c == nil || c.resolver == nil {
		return nil
	}
	if companyID == "" || resourceID == "" {
		return nil
	}
	owner, err := c.resolver.ResolveCompany(ctx, resourceID)
	if err != nil {
		return err
	}
	if owner == "" {
		return ErrNotFound
	}
	if owner != companyID {
		return ErrCompanyMismatch
	}
	return nil
}
