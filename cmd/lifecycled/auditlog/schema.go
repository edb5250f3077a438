package auditlog

const (
	tableSchema = `
		CREATE TABLE IF NOT EXISTS lifecycle_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			agent_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL
		)`

	triggerPreventUpdate = `
		CREATE TRIGGER IF NOT EXISTS prevent_update
		BEFORE UPDATE ON lifecycle_events
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'updates not allowed on lifecycle_events');
		END`

	triggerPreventDelete = `
		CREATE TRIGGER IF NOT EXISTS prevent_delete
		BEFORE DELETE ON lifecycle_events
		FOR EACH ROW
		BEGIN
			SELECT RAISE(FAIL, 'deletes not allowed on lifecycle_events');
		END`

	indexAgent = `
		CREATE INDEX IF NOT EXISTS idx_agent_id ON lifecycle_events(agent_id)`

	indexRecordedAt = `
		CREATE INDEX IF NOT EXISTS idx_recorded_at ON lifecycle_events(recorded_at DESC)`
)

func schemaStatements() []string {
	return []string{tableSchema, triggerPreventUpdate, triggerPreventDelete, indexAgent, indexRecordedAt}
}
