package tier

import "saffron/db"

var Schema db.Schema

func init() {
	// if you want to make any change to Schema (create table, drop table,
	// alter table etc.) add a versioned query here. Numbers should be
	// increasing with no gaps and no repetitions
	//
	// NOTE: the DDL has to be accepted by both MySQL (prod) and SQLite
	// (tests), so no inline INDEX clauses or auto-increment extras.
	Schema = db.Schema{
		1: `CREATE TABLE IF NOT EXISTS model (
				name VARCHAR(255) NOT NULL,
				version VARCHAR(255) NOT NULL,
				task VARCHAR(255) NOT NULL,
				framework VARCHAR(255) NOT NULL,
				framework_version VARCHAR(255) NOT NULL,
				artifact_path VARCHAR(255) NOT NULL DEFAULT '',
				hub_model_id VARCHAR(255) NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				last_modified BIGINT NOT NULL,
				PRIMARY KEY(name, version)
		);`,
		2: `CREATE TABLE IF NOT EXISTS sagemaker_hosted_model (
				sagemaker_model_name VARCHAR(255) NOT NULL,
				model_name VARCHAR(255) NOT NULL,
				model_version VARCHAR(255) NOT NULL,
				container_hostname VARCHAR(255) NOT NULL,
				PRIMARY KEY(sagemaker_model_name, model_name, model_version)
		);`,
		3: `CREATE TABLE IF NOT EXISTS sagemaker_endpoint_config (
				name VARCHAR(255) NOT NULL PRIMARY KEY,
				variant_name VARCHAR(255) NOT NULL,
				model_name VARCHAR(255) NOT NULL,
				instance_type VARCHAR(255) NOT NULL,
				instance_count INTEGER NOT NULL,
				max_concurrent_invocations INTEGER NOT NULL,
				output_path VARCHAR(255) NOT NULL,
				failure_path VARCHAR(255) NOT NULL DEFAULT '',
				success_topic VARCHAR(255) NOT NULL DEFAULT '',
				error_topic VARCHAR(255) NOT NULL DEFAULT ''
		);`,
		4: `CREATE TABLE IF NOT EXISTS sagemaker_endpoint (
				name VARCHAR(255) NOT NULL,
				endpoint_config_name VARCHAR(255) NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				PRIMARY KEY(name, endpoint_config_name)
		);`,
		5: `CREATE TABLE IF NOT EXISTS invocation_log (
				inference_id VARCHAR(255) NOT NULL PRIMARY KEY,
				endpoint_name VARCHAR(255) NOT NULL,
				input_location VARCHAR(255) NOT NULL,
				output_location VARCHAR(255) NOT NULL,
				failure_location VARCHAR(255) NOT NULL DEFAULT '',
				content_type VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'submitted',
				submitted_at BIGINT NOT NULL,
				resolved_at BIGINT NOT NULL DEFAULT 0
		);`,
	}
}
