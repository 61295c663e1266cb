package deployment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lib "saffron/lib/sagemaker"
	"saffron/model/deployment"
	"saffron/test"
)

func TestModelRegistry(t *testing.T) {
	tr, _ := test.Tier(t)

	model := lib.Model{
		Name:             "beto-sentiment-analysis",
		Version:          "v1",
		Task:             "text-classification",
		Framework:        "huggingface",
		FrameworkVersion: "4.12.3",
		HubModelId:       "finiteautomata/beto-sentiment-analysis",
	}
	require.NoError(t, deployment.InsertModel(tr, model))

	got, err := deployment.GetModel(tr, "beto-sentiment-analysis", "v1")
	assert.NoError(t, err)
	assert.Equal(t, model.Name, got.Name)
	assert.Equal(t, model.HubModelId, got.HubModelId)
	assert.True(t, got.Active)
	assert.NotZero(t, got.LastModified)

	// a second version is a second row
	model.Version = "v2"
	require.NoError(t, deployment.InsertModel(tr, model))

	active, err := deployment.GetActiveModels(tr)
	assert.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, deployment.MakeModelInactive(tr, "beto-sentiment-analysis", "v1"))
	active, err = deployment.GetActiveModels(tr)
	assert.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "v2", active[0].Version)
}

func TestHostedModels(t *testing.T) {
	tr, _ := test.Tier(t)

	name, err := deployment.GetLatestHostedName(tr, "beto-sentiment-analysis", "v1")
	assert.NoError(t, err)
	assert.Empty(t, name)

	require.NoError(t, deployment.InsertHostedModels(tr, lib.SagemakerHostedModel{
		SagemakerModelName: "t-1-beto-sentiment-analysis-v1-100",
		ModelName:          "beto-sentiment-analysis",
		ModelVersion:       "v1",
		ContainerHostname:  lib.GetContainerName("beto-sentiment-analysis", "v1"),
	}))
	require.NoError(t, deployment.InsertHostedModels(tr, lib.SagemakerHostedModel{
		SagemakerModelName: "t-1-beto-sentiment-analysis-v1-200",
		ModelName:          "beto-sentiment-analysis",
		ModelVersion:       "v1",
		ContainerHostname:  lib.GetContainerName("beto-sentiment-analysis", "v1"),
	}))

	hosted, err := deployment.GetHostedModels(tr, "t-1-beto-sentiment-analysis-v1-100")
	assert.NoError(t, err)
	require.Len(t, hosted, 1)
	assert.Equal(t, "beto-sentiment-analysis", hosted[0].ModelName)

	// latest means the lexically greatest name, which sorts by timestamp
	// suffix for names minted by the deployment controller
	name, err = deployment.GetLatestHostedName(tr, "beto-sentiment-analysis", "v1")
	assert.NoError(t, err)
	assert.Equal(t, "t-1-beto-sentiment-analysis-v1-200", name)
}

func TestEndpointConfigRegistry(t *testing.T) {
	tr, _ := test.Tier(t)

	cfg, err := deployment.GetEndpointConfig(tr, "no-such-config")
	assert.NoError(t, err)
	assert.Empty(t, cfg.Name)

	want := lib.SagemakerEndpointConfig{
		Name:                     "my-config",
		VariantName:              "my-model",
		ModelName:                "my-model",
		InstanceType:             "ml.m5.xlarge",
		InstanceCount:            1,
		MaxConcurrentInvocations: 4,
		OutputPath:               "s3://saffron-test/async/output",
		FailurePath:              "s3://saffron-test/async/failure",
	}
	require.NoError(t, deployment.InsertEndpointConfig(tr, want))

	cfg, err = deployment.GetEndpointConfig(tr, "my-config")
	assert.NoError(t, err)
	assert.Equal(t, want, cfg)

	cfg, err = deployment.GetEndpointConfigWithModel(tr, "my-model")
	assert.NoError(t, err)
	assert.Equal(t, want, cfg)
}

func TestEndpointRegistry(t *testing.T) {
	tr, _ := test.Tier(t)

	ep, err := deployment.GetEndpoint(tr, "my-endpoint")
	assert.NoError(t, err)
	assert.Empty(t, ep.Name)

	require.NoError(t, deployment.InsertEndpoint(tr, lib.SagemakerEndpoint{
		Name:               "my-endpoint",
		EndpointConfigName: "my-config",
	}))
	ep, err = deployment.GetEndpoint(tr, "my-endpoint")
	assert.NoError(t, err)
	assert.Equal(t, "my-config", ep.EndpointConfigName)

	require.NoError(t, deployment.UpdateEndpointConfigName(tr, "my-endpoint", "new-config"))
	ep, err = deployment.GetEndpoint(tr, "my-endpoint")
	assert.NoError(t, err)
	assert.Equal(t, "new-config", ep.EndpointConfigName)

	require.NoError(t, deployment.MakeEndpointInactive(tr, "my-endpoint"))
	ep, err = deployment.GetEndpoint(tr, "my-endpoint")
	assert.NoError(t, err)
	assert.Empty(t, ep.Name)

	// re-registering the same endpoint/config pair reactivates the row
	require.NoError(t, deployment.InsertEndpoint(tr, lib.SagemakerEndpoint{
		Name:               "my-endpoint",
		EndpointConfigName: "new-config",
	}))
	ep, err = deployment.GetEndpoint(tr, "my-endpoint")
	assert.NoError(t, err)
	assert.Equal(t, "my-endpoint", ep.Name)
	assert.Equal(t, "new-config", ep.EndpointConfigName)
}
