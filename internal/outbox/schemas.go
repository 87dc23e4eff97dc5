package outbox

const tierReachedSchema = `{
  "type": "object",
  "title": "TierReached",
  "properties": {
    "plan_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "tier": {"type": "string"},
    "tier_weeks": {"type": "integer"},
    "streak": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["plan_id", "tenant_id", "user_id", "tier", "tier_weeks", "streak", "occurred_at"],
  "additionalProperties": false
}`

const planAchievedSchema = `{
  "type": "object",
  "title": "PlanAchieved",
  "properties": {
    "plan_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "completed_weeks": {"type": "integer"},
    "total_weeks": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["plan_id", "tenant_id", "user_id", "completed_weeks", "total_weeks", "occurred_at"],
  "additionalProperties": false
}`
