package auditlog

const (
	queryInsertEvent = `
		INSERT INTO lifecycle_events (agent_id, kind, detail)
		VALUES (?, ?, ?)`

	querySelectAll = `
		SELECT id, recorded_at, agent_id, kind, detail
		FROM lifecycle_events
		ORDER BY recorded_at DESC`

	querySelectByAgent = `
		SELECT id, recorded_at, agent_id, kind, detail
		FROM lifecycle_events
		WHERE agent_id = ?
		ORDER BY recorded_at DESC`
)
