package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions are stored as documents: the engine treats
			-- persistence as a generic keyed store and never queries inside
			-- the definition.
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				owner VARCHAR(255),
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id),
				caller_id VARCHAR(255),
				status VARCHAR(50) NOT NULL,
				current_node_id VARCHAR(255),
				input_data JSONB DEFAULT '{}',
				output_data JSONB,
				error_message TEXT,
				error_node_id VARCHAR(255),
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_created_at ON executions(created_at);

			-- Latest attempt per (execution, node); updated in place.
			CREATE TABLE node_executions (
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB DEFAULT '{}',
				output JSONB,
				error_message TEXT,
				model_used VARCHAR(255),
				failover_used BOOLEAN NOT NULL DEFAULT false,
				input_tokens INT NOT NULL DEFAULT 0,
				output_tokens INT NOT NULL DEFAULT 0,
				cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
				retry_count INT NOT NULL DEFAULT 0,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE,
				completed_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (execution_id, node_id)
			);

			CREATE INDEX idx_node_executions_node_id ON node_executions(node_id);
			CREATE INDEX idx_node_executions_status ON node_executions(status);

			-- Append-only usage facts; rows are never updated or deleted.
			CREATE TABLE token_usage (
				id UUID PRIMARY KEY,
				request_id VARCHAR(255) NOT NULL,
				execution_id VARCHAR(255),
				node_id VARCHAR(255),
				model_id VARCHAR(255) NOT NULL,
				input_tokens INT NOT NULL,
				output_tokens INT NOT NULL,
				cost_usd DOUBLE PRECISION NOT NULL,
				latency_ms BIGINT NOT NULL,
				failover_used BOOLEAN NOT NULL DEFAULT false,
				original_model_id VARCHAR(255),
				recorded_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_token_usage_execution_id ON token_usage(execution_id);
			CREATE INDEX idx_token_usage_model_id ON token_usage(model_id);
			CREATE INDEX idx_token_usage_recorded_at ON token_usage(recorded_at);
		`,
	}
}
