package deployment

import (
	"database/sql"
	"fmt"
	"time"

	lib "saffron/lib/sagemaker"
	"saffron/tier"
)

func InsertModel(tier tier.Tier, model lib.Model) error {
	ts := time.Now().Unix()
	stmt := `
		INSERT INTO model (
			name,
			version,
			task,
			framework,
			framework_version,
			artifact_path,
			hub_model_id,
			active,
			last_modified
		) VALUES (
			?, ?, ?, ?, ?, ?, ?, TRUE, ?
		)
	`
	_, err := tier.DB.Exec(stmt,
		model.Name,
		model.Version,
		model.Task,
		model.Framework,
		model.FrameworkVersion,
		model.ArtifactPath,
		model.HubModelId,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create model entry in db: %v", err)
	}
	return nil
}

func MakeModelInactive(tier tier.Tier, name, version string) error {
	stmt := `
		UPDATE model
		SET active=FALSE
		WHERE name=? AND version=?
	`
	_, err := tier.DB.Exec(stmt, name, version)
	if err != nil {
		return fmt.Errorf("failed to make model inactive: %v", err)
	}
	return nil
}

func GetModel(tier tier.Tier, name, version string) (lib.Model, error) {
	var model lib.Model
	err := tier.DB.Get(&model, `
		SELECT *
		FROM model
		WHERE name=? AND version=?
	`, name, version)
	if err != nil {
		return model, fmt.Errorf("failed to get model: %v", err)
	}
	return model, nil
}

func GetActiveModels(tier tier.Tier) ([]lib.Model, error) {
	var models []lib.Model
	err := tier.DB.Select(&models, `
		SELECT *
		FROM model
		WHERE active=TRUE
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active models: %v", err)
	}
	return models, nil
}

func InsertHostedModels(tier tier.Tier, hostedModels ...lib.SagemakerHostedModel) error {
	stmt := `
		INSERT INTO sagemaker_hosted_model (
			sagemaker_model_name,
			model_name,
			model_version,
			container_hostname
		) VALUES (
			:sagemaker_model_name,
			:model_name,
			:model_version,
			:container_hostname
		)
	`
	_, err := tier.DB.NamedExec(stmt, hostedModels)
	if err != nil {
		return fmt.Errorf("failed to create hosted model entry in db: %v", err)
	}
	return nil
}

func GetHostedModels(tier tier.Tier, sagemakerModelName string) ([]lib.SagemakerHostedModel, error) {
	var hostedModels []lib.SagemakerHostedModel
	err := tier.DB.Select(&hostedModels, `
		SELECT *
		FROM sagemaker_hosted_model
		WHERE sagemaker_model_name=?
	`, sagemakerModelName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hosted models: %v", err)
	}
	return hostedModels, nil
}

// GetLatestHostedName returns the sagemaker model name hosting the given
// registered model, or "" when the model was never deployed.
func GetLatestHostedName(tier tier.Tier, modelName, modelVersion string) (string, error) {
	var names []string
	err := tier.DB.Select(&names, `
		SELECT sagemaker_model_name
		FROM sagemaker_hosted_model
		WHERE model_name=? AND model_version=?
		ORDER BY sagemaker_model_name DESC
	`, modelName, modelVersion)
	if err != nil {
		return "", fmt.Errorf("failed to get hosted model name: %v", err)
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

func InsertEndpointConfig(tier tier.Tier, cfg lib.SagemakerEndpointConfig) error {
	stmt := `
		INSERT INTO sagemaker_endpoint_config (
			name,
			variant_name,
			model_name,
			instance_type,
			instance_count,
			max_concurrent_invocations,
			output_path,
			failure_path,
			success_topic,
			error_topic
		) VALUES (
			:name,
			:variant_name,
			:model_name,
			:instance_type,
			:instance_count,
			:max_concurrent_invocations,
			:output_path,
			:failure_path,
			:success_topic,
			:error_topic
		)
	`
	_, err := tier.DB.NamedExec(stmt, cfg)
	if err != nil {
		return fmt.Errorf("failed to create endpoint config entry in db: %v", err)
	}
	return nil
}

func GetEndpointConfig(tier tier.Tier, name string) (lib.SagemakerEndpointConfig, error) {
	var cfgs []lib.SagemakerEndpointConfig
	err := tier.DB.Select(&cfgs, `
		SELECT *
		FROM sagemaker_endpoint_config
		WHERE name=?
	`, name)
	if err != nil {
		return lib.SagemakerEndpointConfig{}, fmt.Errorf("failed to get endpoint config: %v", err)
	}
	if len(cfgs) == 0 {
		return lib.SagemakerEndpointConfig{}, nil
	}
	return cfgs[0], nil
}

// GetEndpointConfigWithModel returns the stored config pointing at the given
// sagemaker model, or the zero value when none exists yet.
func GetEndpointConfigWithModel(tier tier.Tier, sagemakerModelName string) (lib.SagemakerEndpointConfig, error) {
	var cfgs []lib.SagemakerEndpointConfig
	err := tier.DB.Select(&cfgs, `
		SELECT *
		FROM sagemaker_endpoint_config
		WHERE model_name=?
	`, sagemakerModelName)
	if err != nil {
		return lib.SagemakerEndpointConfig{}, fmt.Errorf("failed to get endpoint config: %v", err)
	}
	if len(cfgs) == 0 {
		return lib.SagemakerEndpointConfig{}, nil
	}
	return cfgs[0], nil
}

// InsertEndpoint records the endpoint in the registry. A teardown leaves the
// row behind with active=FALSE, so a redeploy of the same endpoint/config
// pair reactivates it rather than inserting a duplicate key.
func InsertEndpoint(tier tier.Tier, endpoint lib.SagemakerEndpoint) error {
	res, err := tier.DB.Exec(`
		UPDATE sagemaker_endpoint
		SET active=TRUE
		WHERE name=? AND endpoint_config_name=?
	`, endpoint.Name, endpoint.EndpointConfigName)
	if err != nil {
		return fmt.Errorf("failed to create endpoint entry in db: %v", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create endpoint entry in db: %v", err)
	}
	if n > 0 {
		return nil
	}
	stmt := `
		INSERT INTO sagemaker_endpoint (
			name,
			endpoint_config_name,
			active
		) VALUES (
			:name,
			:endpoint_config_name,
			TRUE
		)
	`
	_, err = tier.DB.NamedExec(stmt, endpoint)
	if err != nil {
		return fmt.Errorf("failed to create endpoint entry in db: %v", err)
	}
	return nil
}

// GetEndpoint returns the active endpoint row with the given name, or the
// zero value when the endpoint was never created (or was torn down).
func GetEndpoint(tier tier.Tier, name string) (lib.SagemakerEndpoint, error) {
	var endpoints []lib.SagemakerEndpoint
	err := tier.DB.Select(&endpoints, `
		SELECT *
		FROM sagemaker_endpoint
		WHERE name=? AND active=TRUE
	`, name)
	if err != nil {
		return lib.SagemakerEndpoint{}, fmt.Errorf("failed to get endpoint: %v", err)
	}
	if len(endpoints) == 0 {
		return lib.SagemakerEndpoint{}, nil
	}
	return endpoints[0], nil
}

func MakeEndpointInactive(tier tier.Tier, name string) error {
	stmt := `
		UPDATE sagemaker_endpoint
		SET active=FALSE
		WHERE name=?
	`
	_, err := tier.DB.Exec(stmt, name)
	if err != nil {
		return fmt.Errorf("failed to make endpoint inactive: %v", err)
	}
	return nil
}

// UpdateEndpointConfigName repoints the stored endpoint row at a new config,
// mirroring an UpdateEndpoint call on the control plane.
func UpdateEndpointConfigName(tier tier.Tier, name, endpointConfigName string) error {
	stmt := `
		UPDATE sagemaker_endpoint
		SET endpoint_config_name=?
		WHERE name=? AND active=TRUE
	`
	_, err := tier.DB.Exec(stmt, endpointConfigName, name)
	if err != nil {
		return fmt.Errorf("failed to update endpoint config name: %v", err)
	}
	return nil
}
