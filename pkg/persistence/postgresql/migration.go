package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				trigger_phrase TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				variables JSONB DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_active ON workflows(active);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				position INT NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				data JSONB DEFAULT '{}',
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_connections (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				position INT NOT NULL,
				id VARCHAR(255) NOT NULL DEFAULT '',
				source_node_id VARCHAR(255) NOT NULL,
				source_handle VARCHAR(255) NOT NULL DEFAULT '',
				target_node_id VARCHAR(255) NOT NULL,
				target_handle VARCHAR(255) NOT NULL DEFAULT '',
				PRIMARY KEY (workflow_id, position)
			);

			CREATE INDEX idx_workflow_connections_source ON workflow_connections(workflow_id, source_node_id);
		`,
		2: `
			CREATE TABLE execution_contexts (
				instance_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL,
				current_node_id VARCHAR(255) NOT NULL,
				last_reply TEXT,
				awaiting_reply BOOLEAN NOT NULL DEFAULT false,
				variables JSONB DEFAULT '{}',
				history JSONB DEFAULT '[]',
				version BIGINT NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (instance_id, contact_id)
			);

			CREATE INDEX idx_execution_contexts_workflow_id ON execution_contexts(workflow_id);
		`,
		3: `
			CREATE TABLE pending_actions (
				instance_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				id VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL,
				owner_id VARCHAR(255) NOT NULL DEFAULT '',
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				locked_until TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (instance_id, contact_id)
			);

			CREATE TABLE committed_actions (
				id VARCHAR(255) PRIMARY KEY,
				pending_action_id VARCHAR(255) NOT NULL,
				instance_id VARCHAR(255) NOT NULL,
				contact_id VARCHAR(255) NOT NULL,
				payload JSONB NOT NULL,
				external_ref VARCHAR(255) NOT NULL DEFAULT '',
				committed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				cancelled_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_committed_actions_conversation ON committed_actions(instance_id, contact_id, committed_at DESC);
			CREATE INDEX idx_committed_actions_committed_at ON committed_actions(committed_at);
		`,
	}
}
