package secrets

import "time"

// Connection represents an external service connection owned by a tenant.
// Its credentials are sealed at rest and only decrypted on demand.
type Connection struct {
	ID             string    `json:"id"`              // Unique connection ID
	OrganizationID string    `json:"organization_id"` // Owning tenant
	Name           string    `json:"name"`            // Display name (e.g., "Stripe production")
	CreatedAt      time.Time `json:"created_at"`      // When connection was created
	UpdatedAt      time.Time `json:"updated_at"`      // Last credential rotation or edit
}

// Credentials holds the decrypted secret material for a connection.
type Credentials struct {
	// WebhookSecret signs inbound deliveries for this connection.
	WebhookSecret string `json:"webhook_secret"`

	// Extra carries any additional provider credentials (API keys, tokens).
	Extra map[string]string `json:"extra,omitempty"`
}
