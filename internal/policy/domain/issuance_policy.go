package domain

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Staff roles known to the CMS.
const (
	RoleSuperAdmin     = "super_admin"
	RoleAdmin          = "admin"
	RoleContentManager = "content_manager"
	RoleViewer         = "viewer"
)

// IssuancePolicy is the static, load-once policy for who may invite whom and which email domains
// are refused. It is read from YAML at startup and never mutated afterwards.
type IssuancePolicy struct {
	// Grants maps an inviter role to the roles it may grant, usually including itself.
	Grants map[string][]string `yaml:"grants"`
	// InviterRoles may call the administrative invitation operations at all.
	InviterRoles []string `yaml:"inviter_roles"`
	// DisposableDomains are throwaway-mail domains; subdomains are refused too.
	DisposableDomains []string `yaml:"disposable_domains"`
}

// DefaultIssuancePolicy returns the built-in hierarchy: super_admin grants everything, admin grants
// admin and below, content_manager grants itself and viewer, viewer grants only viewer.
func DefaultIssuancePolicy() *IssuancePolicy {
	return &IssuancePolicy{
		Grants: map[string][]string{
			RoleSuperAdmin:     {RoleSuperAdmin, RoleAdmin, RoleContentManager, RoleViewer},
			RoleAdmin:          {RoleAdmin, RoleContentManager, RoleViewer},
			RoleContentManager: {RoleContentManager, RoleViewer},
			RoleViewer:         {RoleViewer},
		},
		InviterRoles: []string{RoleSuperAdmin, RoleAdmin, RoleContentManager},
		DisposableDomains: []string{
			"10minutemail.com", "guerrillamail.com", "mailinator.com", "tempmail.com", "temp-mail.org",
			"throwawaymail.com", "yopmail.com", "trashmail.com", "sharklasers.com", "getnada.com",
			"dispostable.com", "maildrop.cc",
		},
	}
}

// ParseIssuancePolicy decodes YAML and validates it. Keys absent from the document keep the
// built-in defaults.
func ParseIssuancePolicy(b []byte) (*IssuancePolicy, error) {
	p := DefaultIssuancePolicy()
	var doc IssuancePolicy
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("issuance policy: %w", err)
	}
	if doc.Grants != nil {
		p.Grants = doc.Grants
	}
	if doc.InviterRoles != nil {
		p.InviterRoles = doc.InviterRoles
	}
	if doc.DisposableDomains != nil {
		p.DisposableDomains = doc.DisposableDomains
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadIssuancePolicy reads the YAML policy at path. An empty path yields the defaults.
func LoadIssuancePolicy(path string) (*IssuancePolicy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultIssuancePolicy(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("issuance policy: %w", err)
	}
	return ParseIssuancePolicy(b)
}

// Validate checks that every granted and inviter role is itself a key of Grants, and normalizes
// the disposable domain list.
func (p *IssuancePolicy) Validate() error {
	if len(p.Grants) == 0 {
		return errors.New("issuance policy: grants must not be empty")
	}
	for from, tos := range p.Grants {
		for _, to := range tos {
			if _, ok := p.Grants[to]; !ok {
				return fmt.Errorf("issuance policy: role %q grants unknown role %q", from, to)
			}
		}
	}
	for _, r := range p.InviterRoles {
		if _, ok := p.Grants[r]; !ok {
			return fmt.Errorf("issuance policy: unknown inviter role %q", r)
		}
	}
	for i, d := range p.DisposableDomains {
		p.DisposableDomains[i] = strings.ToLower(strings.TrimSpace(d))
	}
	return nil
}

// IsKnownRole reports whether role appears in the hierarchy.
func (p *IssuancePolicy) IsKnownRole(role string) bool {
	_, ok := p.Grants[role]
	return ok
}

// CanGrant reports whether inviterRole may hand out targetRole.
func (p *IssuancePolicy) CanGrant(inviterRole, targetRole string) bool {
	return slices.Contains(p.Grants[inviterRole], targetRole)
}

// CanInvite reports whether role may use the administrative invitation operations.
func (p *IssuancePolicy) CanInvite(role string) bool {
	return slices.Contains(p.InviterRoles, role)
}

// IsDisposableDomain reports whether domain or one of its parent domains is a throwaway-mail provider.
func (p *IssuancePolicy) IsDisposableDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))
	for _, d := range p.DisposableDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
