package outbox

import "github.com/The-Simomatic/Sportisimo/internal/events"

const profileCreatedSchema = `{
  "type": "object",
  "title": "ProfileCreated",
  "properties": {
    "user_id": {"type": "string"},
    "email": {"type": "string"},
    "sport": {"type": "string"},
    "level": {"type": "string"},
    "vma": {"type": "number", "exclusiveMinimum": 0},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "email", "sport", "level", "vma", "created_at"],
  "additionalProperties": false
}`

const profileUpdatedSchema = `{
  "type": "object",
  "title": "ProfileUpdated",
  "properties": {
    "user_id": {"type": "string"},
    "vma": {"type": "number", "exclusiveMinimum": 0},
    "weight_kg": {"type": "number", "exclusiveMinimum": 0},
    "strava_linked": {"type": "boolean"},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "vma", "weight_kg", "strava_linked", "updated_at"],
  "additionalProperties": false
}`

const identitySignedUpSchema = `{
  "type": "object",
  "title": "IdentitySignedUp",
  "properties": {
    "identity_id": {"type": "string"},
    "email": {"type": "string"},
    "first_name": {"type": "string"},
    "code": {"type": "string"},
    "expires_at": {"type": "string", "format": "date-time"}
  },
  "required": ["identity_id", "email", "code", "expires_at"],
  "additionalProperties": false
}`

const passwordResetRequestedSchema = `{
  "type": "object",
  "title": "PasswordResetRequested",
  "properties": {
    "identity_id": {"type": "string"},
    "email": {"type": "string"},
    "code": {"type": "string"},
    "expires_at": {"type": "string", "format": "date-time"}
  },
  "required": ["identity_id", "email", "code", "expires_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeProfileCreated:         {Schema: profileCreatedSchema},
	events.TypeProfileUpdated:         {Schema: profileUpdatedSchema},
	events.TypeIdentitySignedUp:       {Schema: identitySignedUpSchema},
	events.TypePasswordResetRequested: {Schema: passwordResetRequestedSchema},
}
