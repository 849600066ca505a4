package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				enabled BOOLEAN NOT NULL DEFAULT true,
				version INTEGER NOT NULL DEFAULT 1,
				triggers JSONB NOT NULL DEFAULT '[]',
				conditions JSONB,
				actions JSONB NOT NULL DEFAULT '[]',
				priority INTEGER NOT NULL DEFAULT 0,
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				failure_count BIGINT NOT NULL DEFAULT 0,
				last_execution_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				CHECK (execution_count = success_count + failure_count)
			);

			CREATE INDEX idx_workflows_enabled ON workflows(enabled);
			CREATE INDEX idx_workflows_priority ON workflows(priority);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
		`,
		2: `
			CREATE TABLE workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				workflow_version INTEGER NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('RUNNING', 'SUCCESS', 'FAILED', 'PARTIAL')),
				triggered_by VARCHAR(20) NOT NULL,
				trigger_source VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				actions_executed INTEGER NOT NULL DEFAULT 0,
				actions_success INTEGER NOT NULL DEFAULT 0,
				actions_failed INTEGER NOT NULL DEFAULT 0,
				retry_count INTEGER NOT NULL DEFAULT 0,
				action_results JSONB NOT NULL DEFAULT '[]',
				context_summary JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflow_executions_workflow_created ON workflow_executions(workflow_id, created_at);
			CREATE INDEX idx_workflow_executions_workflow_started ON workflow_executions(workflow_id, started_at);
			CREATE INDEX idx_workflow_executions_status ON workflow_executions(status);
		`,
	}
}
