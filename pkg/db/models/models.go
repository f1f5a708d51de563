package models

// All lists every persisted model, parents first.
func All() []any {
	return []any{
		&User{},
		&Location{},
		&Table{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
