package deployment_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saffron/controller/deployment"
	lib "saffron/lib/sagemaker"
	modeldb "saffron/model/deployment"
	"saffron/resource"
	"saffron/test"
	"saffron/tier"
)

func sentimentModel(version string) lib.Model {
	return lib.Model{
		Name:             "beto-sentiment-analysis",
		Version:          version,
		Task:             "text-classification",
		Framework:        "huggingface",
		FrameworkVersion: "4.12.3",
		HubModelId:       "finiteautomata/beto-sentiment-analysis",
	}
}

func deploySentiment(t *testing.T, tr tier.Tier, version string) string {
	name, err := deployment.Deploy(context.Background(), tr, deployment.DeployRequest{
		Model: sentimentModel(version),
	})
	require.NoError(t, err)
	return name
}

func TestDeploy(t *testing.T) {
	tr, fake := test.Tier(t)
	ctx := context.Background()

	modelName := deploySentiment(t, tr, "v1")
	scope := resource.NewTierScope(tr.ID)
	assert.True(t, strings.HasPrefix(modelName, scope.HyphenatedName("beto-sentiment-analysis")))

	// everything exists on the control plane
	exists, err := tr.SagemakerClient.ModelExists(ctx, modelName)
	assert.NoError(t, err)
	assert.True(t, exists)
	endpointName := tr.ModelStore.EndpointName()
	exists, err = tr.SagemakerClient.EndpointExists(ctx, endpointName)
	assert.NoError(t, err)
	assert.True(t, exists)

	// and in the registry
	cfg, err := modeldb.GetEndpointConfig(tr, modelName+"-config")
	assert.NoError(t, err)
	assert.Equal(t, modelName, cfg.ModelName)
	assert.Equal(t, tr.ModelStore.OutputPath(), cfg.OutputPath)
	assert.Equal(t, tr.ModelStore.FailurePath(), cfg.FailurePath)
	assert.Empty(t, cfg.SuccessTopic)
	ep, err := modeldb.GetEndpoint(tr, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, cfg.Name, ep.EndpointConfigName)

	status, err := deployment.EndpointStatus(ctx, tr, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, lib.EndpointCreating, status)

	fake.SetEndpointStatus(endpointName, lib.EndpointInService)
	status, err = deployment.EndpointStatus(ctx, tr, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, lib.EndpointInService, status)
}

func TestDeployValidation(t *testing.T) {
	tr, _ := test.Tier(t)
	ctx := context.Background()

	_, err := deployment.Deploy(ctx, tr, deployment.DeployRequest{
		Model: lib.Model{Name: "no-version"},
	})
	assert.ErrorIs(t, err, lib.ErrConfiguration)

	// neither artifact nor hub model id
	_, err = deployment.Deploy(ctx, tr, deployment.DeployRequest{
		Model: lib.Model{Name: "no-weights", Version: "v1", Framework: "huggingface", FrameworkVersion: "4.12.3"},
	})
	assert.ErrorIs(t, err, lib.ErrConfiguration)
}

func TestDeployIdempotent(t *testing.T) {
	tr, _ := test.Tier(t)

	first := deploySentiment(t, tr, "v1")
	second := deploySentiment(t, tr, "v1")
	assert.Equal(t, first, second)

	// no duplicate registry rows either
	models, err := modeldb.GetActiveModels(tr)
	assert.NoError(t, err)
	assert.Len(t, models, 1)
}

func TestDeployNewVersionUpdatesEndpoint(t *testing.T) {
	tr, fake := test.Tier(t)
	ctx := context.Background()
	endpointName := tr.ModelStore.EndpointName()

	v1Model := deploySentiment(t, tr, "v1")
	fake.SetEndpointStatus(endpointName, lib.EndpointInService)

	v2Model := deploySentiment(t, tr, "v2")
	assert.NotEqual(t, v1Model, v2Model)

	// the existing endpoint was repointed at the v2 config, not recreated
	cfgName, err := tr.SagemakerClient.GetEndpointConfigName(ctx, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, v2Model+"-config", cfgName)
	status, err := tr.SagemakerClient.GetEndpointStatus(ctx, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, lib.EndpointUpdating, status)

	ep, err := modeldb.GetEndpoint(tr, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, v2Model+"-config", ep.EndpointConfigName)
}

func TestDeployAwait(t *testing.T) {
	tr, fake := test.Tier(t)
	endpointName := tr.ModelStore.EndpointName()

	go func() {
		// give the deploy time to create the endpoint before flipping it
		for i := 0; i < 100; i++ {
			time.Sleep(10 * time.Millisecond)
			fake.SetEndpointStatus(endpointName, lib.EndpointInService)
		}
	}()
	_, err := deployment.Deploy(context.Background(), tr, deployment.DeployRequest{
		Model:        sentimentModel("v1"),
		AwaitTimeout: 5 * time.Second,
	})
	assert.NoError(t, err)
}

func TestDeployAwaitTimeout(t *testing.T) {
	tr, _ := test.Tier(t)

	// nothing ever flips the endpoint to InService
	_, err := deployment.Deploy(context.Background(), tr, deployment.DeployRequest{
		Model:        sentimentModel("v1"),
		AwaitTimeout: 30 * time.Millisecond,
	})
	assert.ErrorIs(t, err, lib.ErrTimeout)
}

func TestDeployWithNotifications(t *testing.T) {
	tr, _ := test.Tier(t)

	model, err := deployment.Deploy(context.Background(), tr, deployment.DeployRequest{
		Model:               sentimentModel("v1"),
		EnableNotifications: true,
	})
	require.NoError(t, err)

	cfg, err := modeldb.GetEndpointConfig(tr, model+"-config")
	assert.NoError(t, err)
	assert.Contains(t, cfg.SuccessTopic, "-success")
	assert.Contains(t, cfg.ErrorTopic, "-error")
}

func TestTeardown(t *testing.T) {
	tr, fake := test.Tier(t)
	ctx := context.Background()
	endpointName := tr.ModelStore.EndpointName()

	err := deployment.Teardown(ctx, tr, "never-deployed")
	assert.ErrorIs(t, err, lib.ErrNotFound)

	modelName := deploySentiment(t, tr, "v1")
	fake.SetEndpointStatus(endpointName, lib.EndpointInService)
	require.NoError(t, deployment.Teardown(ctx, tr, endpointName))

	exists, err := tr.SagemakerClient.EndpointExists(ctx, endpointName)
	assert.NoError(t, err)
	assert.False(t, exists)
	exists, err = tr.SagemakerClient.EndpointConfigExists(ctx, modelName+"-config")
	assert.NoError(t, err)
	assert.False(t, exists)
	exists, err = tr.SagemakerClient.ModelExists(ctx, modelName)
	assert.NoError(t, err)
	assert.False(t, exists)

	// registry rows are deactivated, not erased
	ep, err := modeldb.GetEndpoint(tr, endpointName)
	assert.NoError(t, err)
	assert.Empty(t, ep.Name)
	models, err := modeldb.GetActiveModels(tr)
	assert.NoError(t, err)
	assert.Empty(t, models)
	m, err := modeldb.GetModel(tr, "beto-sentiment-analysis", "v1")
	assert.NoError(t, err)
	assert.False(t, m.Active)
}

func TestRedeployAfterTeardown(t *testing.T) {
	tr, fake := test.Tier(t)
	ctx := context.Background()
	endpointName := tr.ModelStore.EndpointName()

	modelName := deploySentiment(t, tr, "v1")
	fake.SetEndpointStatus(endpointName, lib.EndpointInService)
	require.NoError(t, deployment.Teardown(ctx, tr, endpointName))

	// the same version comes back: the registry row is reactivated, not
	// duplicated, and the control plane resources are recreated
	redeployed := deploySentiment(t, tr, "v1")
	assert.Equal(t, modelName, redeployed)

	exists, err := tr.SagemakerClient.EndpointExists(ctx, endpointName)
	assert.NoError(t, err)
	assert.True(t, exists)
	ep, err := modeldb.GetEndpoint(tr, endpointName)
	assert.NoError(t, err)
	assert.Equal(t, endpointName, ep.Name)
	assert.Equal(t, modelName+"-config", ep.EndpointConfigName)
}

func TestTeardownDeletesTopics(t *testing.T) {
	tr, fake := test.Tier(t)
	ctx := context.Background()
	endpointName := tr.ModelStore.EndpointName()

	_, err := deployment.Deploy(ctx, tr, deployment.DeployRequest{
		Model:               sentimentModel("v1"),
		EnableNotifications: true,
	})
	require.NoError(t, err)

	successTopic := fmt.Sprintf("saffron-test-%s-success", endpointName)
	errorTopic := fmt.Sprintf("saffron-test-%s-error", endpointName)
	_, ok := fake.Topic(successTopic)
	require.True(t, ok)
	_, ok = fake.Topic(errorTopic)
	require.True(t, ok)

	fake.SetEndpointStatus(endpointName, lib.EndpointInService)
	require.NoError(t, deployment.Teardown(ctx, tr, endpointName))

	_, ok = fake.Topic(successTopic)
	assert.False(t, ok)
	_, ok = fake.Topic(errorTopic)
	assert.False(t, ok)
}
