package domain

// Provenance tags which authentication scheme produced a Principal. The rest
// of the application switches on this single discriminant rather than on
// four unrelated identity shapes.
type Provenance string

const (
	ProvenanceLocal             Provenance = "local"
	ProvenanceFederatedPassword Provenance = "federated_password"
	ProvenanceDeviceFlow        Provenance = "device_flow"
	ProvenanceOIDC              Provenance = "oidc"
)

// Valid reports whether p is one of the four known schemes.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceLocal, ProvenanceFederatedPassword, ProvenanceDeviceFlow, ProvenanceOIDC:
		return true
	}
	return false
}

// Principal is the normalized identity produced by any successful
// authentication path. It is constructed fresh on every login and is what
// downstream features consume for role-gated decisions.
type Principal struct {
	ID          string     `json:"id"`
	Username    string     `json:"username,omitempty"`
	Email       string     `json:"email,omitempty"`
	DisplayName string     `json:"display_name,omitempty"`
	Role        Role       `json:"role"`
	Provenance  Provenance `json:"provenance"`
}

// IsAdmin reports whether the principal may manage other users.
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
