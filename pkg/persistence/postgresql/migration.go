package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'active', 'inactive')),
				definition JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_enrollments (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				location_id VARCHAR(255),
				source VARCHAR(50) NOT NULL,
				lead JSONB NOT NULL DEFAULT '{}',
				status VARCHAR(50) NOT NULL,
				steps JSONB NOT NULL DEFAULT '[]',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_enrollments_workflow_id ON workflow_enrollments(workflow_id);
			CREATE INDEX idx_workflow_enrollments_started_at ON workflow_enrollments(started_at);
		`,
		2: `
			CREATE TABLE workflow_agent_sessions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				enrollment_id UUID,
				location_id VARCHAR(255),
				agent_id VARCHAR(255) NOT NULL,
				channel VARCHAR(10) NOT NULL CHECK (channel IN ('SMS', 'EMAIL')),
				lead JSONB NOT NULL DEFAULT '{}',
				lead_phone_norm VARCHAR(50),
				lead_phone_last10 VARCHAR(10),
				lead_email_norm VARCHAR(255),
				contact_id VARCHAR(255),
				twilio_from_phone VARCHAR(50),
				twilio_to_phone_norm VARCHAR(50),
				active BOOLEAN NOT NULL DEFAULT true,
				activated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_inbound_at TIMESTAMP WITH TIME ZONE,
				last_inbound_message_id VARCHAR(255),
				last_outbound_at TIMESTAMP WITH TIME ZONE,
				last_outbound_message_id VARCHAR(255),
				follow_up_step INT NOT NULL DEFAULT 0,
				next_follow_up_at TIMESTAMP WITH TIME ZONE,
				last_follow_up_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_agent_sessions_workflow_id ON workflow_agent_sessions(workflow_id);
			CREATE INDEX idx_agent_sessions_enrollment_id ON workflow_agent_sessions(enrollment_id);
			CREATE INDEX idx_agent_sessions_phone_norm ON workflow_agent_sessions(lead_phone_norm) WHERE active;
			CREATE INDEX idx_agent_sessions_phone_last10 ON workflow_agent_sessions(lead_phone_last10) WHERE active;
			CREATE INDEX idx_agent_sessions_email_norm ON workflow_agent_sessions(lead_email_norm) WHERE active;
			CREATE INDEX idx_agent_sessions_next_follow_up ON workflow_agent_sessions(next_follow_up_at) WHERE active AND next_follow_up_at IS NOT NULL;

			CREATE TABLE workflow_agent_events (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				session_id UUID,
				enrollment_id UUID,
				event_type VARCHAR(255) NOT NULL,
				level VARCHAR(10) NOT NULL,
				message TEXT NOT NULL DEFAULT '',
				payload JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_agent_events_workflow_id ON workflow_agent_events(workflow_id);
			CREATE INDEX idx_agent_events_created_at ON workflow_agent_events(created_at);
		`,
	}
}
