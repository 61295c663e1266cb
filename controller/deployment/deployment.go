package deployment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	lib "saffron/lib/sagemaker"
	"saffron/lib/timer"
	modeldb "saffron/model/deployment"
	"saffron/resource"
	"saffron/tier"
)

// DeployRequest names every identifier explicitly. The chain is
// model -> config -> endpoint; each step consumes the identifier the
// previous one produced, so there is no implicit ordering to get wrong.
type DeployRequest struct {
	Model lib.Model
	// Caller-supplied names. EndpointConfigName defaults to a name derived
	// from the sagemaker model when empty; EndpointName defaults to the
	// tier's configured endpoint.
	EndpointName       string
	EndpointConfigName string
	// Async inference parameters.
	MaxConcurrentInvocations uint
	// Provision SNS completion topics on the endpoint config. Requires the
	// tier to carry an SNS client; ignored otherwise.
	EnableNotifications bool
	// When non-zero, Deploy blocks until the endpoint is InService or the
	// timeout elapses.
	AwaitTimeout time.Duration
}

func (req *DeployRequest) setDefaults(t tier.Tier, sagemakerModelName string) {
	if req.EndpointName == "" {
		req.EndpointName = t.ModelStore.EndpointName()
	}
	if req.EndpointConfigName == "" {
		req.EndpointConfigName = fmt.Sprintf("%s-config", sagemakerModelName)
	}
	if req.MaxConcurrentInvocations == 0 {
		req.MaxConcurrentInvocations = 4
	}
}

// Deploy runs the full provisioning chain for one model: register it,
// create the sagemaker model, declare an async endpoint config and bring up
// (or repoint) the endpoint. Every created resource is recorded in the
// registry first, so a crashed deploy can be re-run; each step checks for
// existence before creating.
func Deploy(ctx context.Context, t tier.Tier, req DeployRequest) (string, error) {
	defer timer.Start("deployment.deploy").Stop()
	if req.Model.Name == "" || req.Model.Version == "" {
		return "", fmt.Errorf("%w: model name and version are required", lib.ErrConfiguration)
	}
	if req.Model.ArtifactPath == "" && req.Model.HubModelId == "" {
		return "", fmt.Errorf("%w: model needs an artifact path or a hub model id", lib.ErrConfiguration)
	}

	// Register the model unless an earlier (possibly crashed) deploy did.
	sagemakerModelName, err := modeldb.GetLatestHostedName(t, req.Model.Name, req.Model.Version)
	if err != nil {
		return "", err
	}
	if sagemakerModelName == "" {
		if err := modeldb.InsertModel(t, req.Model); err != nil {
			return "", err
		}
		scope := resource.NewTierScope(t.ID)
		sagemakerModelName = scope.HyphenatedName(
			fmt.Sprintf("%s-%s-%s", req.Model.Name, req.Model.Version, time.Now().Format("20060102150405")))
		err = modeldb.InsertHostedModels(t, lib.SagemakerHostedModel{
			SagemakerModelName: sagemakerModelName,
			ModelName:          req.Model.Name,
			ModelVersion:       req.Model.Version,
			ContainerHostname:  lib.GetContainerName(req.Model.Name, req.Model.Version),
		})
		if err != nil {
			return "", err
		}
	}
	req.setDefaults(t, sagemakerModelName)

	exists, err := t.SagemakerClient.ModelExists(ctx, sagemakerModelName)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := t.SagemakerClient.CreateModel(ctx, []lib.Model{req.Model}, sagemakerModelName); err != nil {
			return "", err
		}
	}

	// Ensure the endpoint config exists in the registry and on sagemaker.
	endpointCfg, err := modeldb.GetEndpointConfig(t, req.EndpointConfigName)
	if err != nil {
		return "", err
	}
	if endpointCfg.Name == "" {
		endpointCfg = lib.SagemakerEndpointConfig{
			Name:                     req.EndpointConfigName,
			ModelName:                sagemakerModelName,
			VariantName:              sagemakerModelName,
			InstanceType:             t.Args.SagemakerInstanceType,
			InstanceCount:            t.Args.SagemakerInstanceCount,
			MaxConcurrentInvocations: req.MaxConcurrentInvocations,
			OutputPath:               t.ModelStore.OutputPath(),
			FailurePath:              t.ModelStore.FailurePath(),
		}
		if req.EnableNotifications {
			if err := provisionTopics(ctx, t, req.EndpointName, &endpointCfg); err != nil {
				return "", err
			}
		}
		if err := modeldb.InsertEndpointConfig(t, endpointCfg); err != nil {
			return "", err
		}
	}
	exists, err = t.SagemakerClient.EndpointConfigExists(ctx, endpointCfg.Name)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := t.SagemakerClient.CreateEndpointConfig(ctx, endpointCfg); err != nil {
			return "", err
		}
	}

	// Ensure the endpoint exists and points at this config.
	endpoint, err := modeldb.GetEndpoint(t, req.EndpointName)
	if err != nil {
		return "", err
	}
	if endpoint.Name == "" {
		endpoint = lib.SagemakerEndpoint{
			Name:               req.EndpointName,
			EndpointConfigName: endpointCfg.Name,
		}
		if err := modeldb.InsertEndpoint(t, endpoint); err != nil {
			return "", err
		}
	}
	exists, err = t.SagemakerClient.EndpointExists(ctx, endpoint.Name)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := t.SagemakerClient.CreateEndpoint(ctx, lib.SagemakerEndpoint{
			Name:               endpoint.Name,
			EndpointConfigName: endpointCfg.Name,
		}); err != nil {
			return "", err
		}
	} else {
		curCfgName, err := t.SagemakerClient.GetEndpointConfigName(ctx, endpoint.Name)
		if err != nil {
			return "", err
		}
		if curCfgName != endpointCfg.Name {
			err = t.SagemakerClient.UpdateEndpoint(ctx, lib.SagemakerEndpoint{
				Name:               endpoint.Name,
				EndpointConfigName: endpointCfg.Name,
			})
			if err != nil {
				return "", err
			}
			if err := modeldb.UpdateEndpointConfigName(t, endpoint.Name, endpointCfg.Name); err != nil {
				return "", err
			}
		}
	}

	if req.AwaitTimeout > 0 {
		status, err := t.SagemakerClient.AwaitInService(ctx, req.EndpointName, req.AwaitTimeout)
		if err != nil {
			return sagemakerModelName, err
		}
		t.Logger.Info("endpoint in service",
			zap.String("endpoint", req.EndpointName), zap.String("status", string(status)))
	}
	return sagemakerModelName, nil
}

func provisionTopics(ctx context.Context, t tier.Tier, endpointName string, cfg *lib.SagemakerEndpointConfig) error {
	snsClient, ok := t.SnsClient.Get()
	if !ok {
		t.Logger.Warn("notifications requested but tier has no sns client; falling back to polling",
			zap.String("endpoint", endpointName))
		return nil
	}
	successArn, err := snsClient.EnsureTopic(ctx, endpointName+"-success")
	if err != nil {
		return err
	}
	errorArn, err := snsClient.EnsureTopic(ctx, endpointName+"-error")
	if err != nil {
		return err
	}
	cfg.SuccessTopic = successArn
	cfg.ErrorTopic = errorArn
	return nil
}

// teardownTopics deletes the notification topics declared on the config, if
// any. Topics are tier-owned, so they go away with the deployment that
// provisioned them.
func teardownTopics(ctx context.Context, t tier.Tier, cfg lib.SagemakerEndpointConfig) error {
	if cfg.SuccessTopic == "" && cfg.ErrorTopic == "" {
		return nil
	}
	snsClient, ok := t.SnsClient.Get()
	if !ok {
		return nil
	}
	for _, arn := range []string{cfg.SuccessTopic, cfg.ErrorTopic} {
		if arn == "" {
			continue
		}
		if err := snsClient.DeleteTopic(ctx, arn); err != nil {
			return err
		}
	}
	return nil
}

// EndpointStatus reports the live control plane status of the endpoint.
func EndpointStatus(ctx context.Context, t tier.Tier, endpointName string) (lib.EndpointStatus, error) {
	return t.SagemakerClient.GetEndpointStatus(ctx, endpointName)
}

// Teardown deletes the endpoint, then its config, then the sagemaker model,
// in that order - the control plane rejects deleting a config still bound to
// a live endpoint. Registry rows are deactivated, not deleted, so the
// deployment history stays queryable.
func Teardown(ctx context.Context, t tier.Tier, endpointName string) error {
	defer timer.Start("deployment.teardown").Stop()
	endpoint, err := modeldb.GetEndpoint(t, endpointName)
	if err != nil {
		return err
	}
	if endpoint.Name == "" {
		return fmt.Errorf("%w: endpoint '%s' is not registered", lib.ErrNotFound, endpointName)
	}

	exists, err := t.SagemakerClient.EndpointExists(ctx, endpointName)
	if err != nil {
		return err
	}
	if exists {
		// DeleteEndpoint waits until the endpoint is actually gone.
		if err := t.SagemakerClient.DeleteEndpoint(ctx, endpointName); err != nil {
			return err
		}
	}
	if err := modeldb.MakeEndpointInactive(t, endpointName); err != nil {
		return err
	}

	cfg, err := modeldb.GetEndpointConfig(t, endpoint.EndpointConfigName)
	if err != nil {
		return err
	}
	if cfg.Name != "" {
		exists, err = t.SagemakerClient.EndpointConfigExists(ctx, cfg.Name)
		if err != nil {
			return err
		}
		if exists {
			if err := t.SagemakerClient.DeleteEndpointConfig(ctx, cfg.Name); err != nil {
				return err
			}
		}
		if cfg.ModelName != "" {
			exists, err = t.SagemakerClient.ModelExists(ctx, cfg.ModelName)
			if err != nil {
				return err
			}
			if exists {
				if err := t.SagemakerClient.DeleteModel(ctx, cfg.ModelName); err != nil {
					return err
				}
			}
		}
		hosted, err := modeldb.GetHostedModels(t, cfg.ModelName)
		if err != nil {
			return err
		}
		for _, h := range hosted {
			if err := modeldb.MakeModelInactive(t, h.ModelName, h.ModelVersion); err != nil {
				return err
			}
		}
		if err := teardownTopics(ctx, t, cfg); err != nil {
			return err
		}
	}
	t.Logger.Info("tore down endpoint", zap.String("endpoint", endpointName))
	return nil
}
