package model

// All lists every table the GORM event store migrates.
func All() []any {
	return []any{
		&WebhookEvent{},
		&WebhookRequestKey{},
	}
}
