package sagemaker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/sagemaker"
	"github.com/aws/aws-sdk-go/service/sagemakerruntime"
	"github.com/raulk/clock"
	"go.uber.org/zap"

	lib "saffron/lib/sagemaker"
)

type SagemakerArgs struct {
	Region                 string        `arg:"--region,env:AWS_REGION,help:AWS region"`
	SagemakerExecutionRole string        `arg:"--sagemaker-execution-role,env:SAGEMAKER_EXECUTION_ROLE,help:SageMaker execution role"`
	SagemakerInstanceType  string        `arg:"--sagemaker-instance-type,env:SAGEMAKER_INSTANCE_TYPE,help:SageMaker instance type" default:"ml.m5.xlarge"`
	SagemakerInstanceCount uint          `arg:"--sagemaker-instance-count,env:SAGEMAKER_INSTANCE_COUNT,help:SageMaker instance count" default:"1"`
	EndpointPollInterval   time.Duration `arg:"--endpoint-poll-interval,env:ENDPOINT_POLL_INTERVAL,help:Interval between endpoint status checks" default:"15s"`
	ResultPollInterval     time.Duration `arg:"--result-poll-interval,env:RESULT_POLL_INTERVAL,help:Interval between async result checks" default:"2s"`
}

func NewClient(args SagemakerArgs, logger *zap.Logger) (SMClient, error) {
	sess := session.Must(session.NewSession(
		&aws.Config{
			Region:                        aws.String(args.Region),
			CredentialsChainVerboseErrors: aws.Bool(true),
		},
	))
	return NewClientFromSession(args, logger, clock.New(), sess), nil
}

// NewClientFromSession exists so tests can point the client at a local fake
// and drive the poll loops with a mock clock.
func NewClientFromSession(args SagemakerArgs, logger *zap.Logger, clk clock.Clock, sess *session.Session) SMClient {
	return SMClient{
		args:   args,
		logger: logger,
		clock:  clk,
		// Capacity rejections must surface to the caller exactly once so
		// the controller's backoff loop owns the retry policy. The SDK's
		// default retryer would swallow throttles before we can classify
		// them.
		runtimeClient:  sagemakerruntime.New(sess, aws.NewConfig().WithMaxRetries(0)),
		metadataClient: sagemaker.New(sess),
		s3Downloader:   s3manager.NewDownloader(sess),
	}
}

type SMClient struct {
	args           SagemakerArgs
	logger         *zap.Logger
	clock          clock.Clock
	runtimeClient  *sagemakerruntime.SageMakerRuntime
	metadataClient *sagemaker.SageMaker
	s3Downloader   *s3manager.Downloader
}

var _ lib.SagemakerRegistry = SMClient{}
var _ lib.AsyncInferenceServer = SMClient{}

func (smc SMClient) CreateModel(ctx context.Context, hostedModels []lib.Model, sagemakerModelName string) error {
	if len(hostedModels) == 0 {
		return nil
	}
	modelInput := sagemaker.CreateModelInput{
		ExecutionRoleArn: aws.String(smc.args.SagemakerExecutionRole),
		ModelName:        aws.String(sagemakerModelName),
	}
	for _, model := range hostedModels {
		env := map[string]*string{}
		for k, v := range model.Env() {
			env[k] = aws.String(v)
		}
		image, err := getImage(model.Framework, model.FrameworkVersion, smc.args.Region)
		if err != nil {
			return fmt.Errorf("failed to get image: %v", err)
		}
		container := &sagemaker.ContainerDefinition{
			ContainerHostname: aws.String(lib.GetContainerName(model.Name, model.Version)),
			Image:             aws.String(image),
			Environment:       env,
		}
		// Hub models are pulled by the container at startup via HF_MODEL_ID;
		// everything else ships a model artifact.
		if model.ArtifactPath != "" {
			container.ModelDataUrl = aws.String(model.ArtifactPath)
		}
		modelInput.Containers = append(modelInput.Containers, container)
	}
	// InferenceExecutionConfig can be set only when the model has more than one containers.
	if len(hostedModels) > 1 {
		modelInput.InferenceExecutionConfig = &sagemaker.InferenceExecutionConfig{
			Mode: aws.String("Direct"),
		}
	}
	_, err := smc.metadataClient.CreateModelWithContext(ctx, &modelInput)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", classify(err))
	}
	return nil
}

func (smc SMClient) ModelExists(ctx context.Context, modelName string) (bool, error) {
	input := sagemaker.DescribeModelInput{
		ModelName: aws.String(modelName),
	}
	_, err := smc.metadataClient.DescribeModelWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == "ValidationException" && strings.HasPrefix(e.Message(), "Could not find model") {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to check if model exists on sagemaker: %v", err)
	}
	return true, nil
}

func (smc SMClient) EndpointConfigExists(ctx context.Context, endpointConfigName string) (bool, error) {
	input := sagemaker.DescribeEndpointConfigInput{
		EndpointConfigName: aws.String(endpointConfigName),
	}
	_, err := smc.metadataClient.DescribeEndpointConfigWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == "ValidationException" && strings.HasPrefix(e.Message(), "Could not find endpoint config") {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to check if endpoint config exists on sagemaker: %v", err)
	}
	return true, nil
}

func (smc SMClient) EndpointExists(ctx context.Context, endpointName string) (bool, error) {
	input := sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	_, err := smc.metadataClient.DescribeEndpointWithContext(ctx, &input)
	if err != nil {
		if e, ok := err.(awserr.Error); ok {
			if e.Code() == "ValidationException" && strings.HasPrefix(e.Message(), "Could not find endpoint") {
				return false, nil
			}
		}
		return false, fmt.Errorf("failed to check if endpoint exists on sagemaker: %v", err)
	}
	return true, nil
}

func (smc SMClient) GetEndpointConfigName(ctx context.Context, endpointName string) (string, error) {
	input := sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	res, err := smc.metadataClient.DescribeEndpointWithContext(ctx, &input)
	if err != nil {
		return "", fmt.Errorf("failed to get config name of endpoint '%s': %w", endpointName, classify(err))
	}
	return aws.StringValue(res.EndpointConfigName), nil
}

func (smc SMClient) GetEndpointStatus(ctx context.Context, endpointName string) (lib.EndpointStatus, error) {
	status, _, err := smc.describeEndpoint(ctx, endpointName)
	return status, err
}

func (smc SMClient) describeEndpoint(ctx context.Context, endpointName string) (lib.EndpointStatus, string, error) {
	input := sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	output, err := smc.metadataClient.DescribeEndpointWithContext(ctx, &input)
	if err != nil {
		return "", "", fmt.Errorf("failed to get endpoint status: %w", classify(err))
	}
	return lib.EndpointStatus(aws.StringValue(output.EndpointStatus)), aws.StringValue(output.FailureReason), nil
}

func (smc SMClient) DeleteModel(ctx context.Context, modelName string) error {
	input := sagemaker.DeleteModelInput{
		ModelName: aws.String(modelName),
	}
	_, err := smc.metadataClient.DeleteModelWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("failed to delete model: %v", err)
	}
	return nil
}

func (smc SMClient) DeleteEndpointConfig(ctx context.Context, endpointConfigName string) error {
	input := sagemaker.DeleteEndpointConfigInput{
		EndpointConfigName: aws.String(endpointConfigName),
	}
	_, err := smc.metadataClient.DeleteEndpointConfigWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint config: %v", err)
	}
	return nil
}

func (smc SMClient) DeleteEndpoint(ctx context.Context, endpointName string) error {
	input := sagemaker.DeleteEndpointInput{
		EndpointName: aws.String(endpointName),
	}
	_, err := smc.metadataClient.DeleteEndpointWithContext(ctx, &input)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %v", err)
	}
	// Wait for the endpoint to be gone -- this should take no longer than a
	// few seconds.
	exists := true
	for exists {
		var err error
		exists, err = smc.EndpointExists(ctx, endpointName)
		if err != nil {
			return fmt.Errorf("failed to check if endpoint still exists: %v", err)
		}
		if exists {
			smc.logger.Info("waiting for endpoint to be deleted", zap.String("endpoint", endpointName))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-smc.clock.After(smc.args.EndpointPollInterval):
			}
		}
	}
	return nil
}

func (smc SMClient) CreateEndpointConfig(ctx context.Context, endpointCfg lib.SagemakerEndpointConfig) error {
	if endpointCfg.OutputPath == "" {
		return fmt.Errorf("%w: endpoint config '%s' has no output path", lib.ErrConfiguration, endpointCfg.Name)
	}
	endpointCfgInput := sagemaker.CreateEndpointConfigInput{
		EndpointConfigName: aws.String(endpointCfg.Name),
		ProductionVariants: []*sagemaker.ProductionVariant{
			{
				ModelName:            aws.String(endpointCfg.ModelName),
				VariantName:          aws.String(endpointCfg.VariantName),
				InstanceType:         aws.String(endpointCfg.InstanceType),
				InitialInstanceCount: aws.Int64(int64(endpointCfg.InstanceCount)),
			},
		},
		AsyncInferenceConfig: &sagemaker.AsyncInferenceConfig{
			ClientConfig: &sagemaker.AsyncInferenceClientConfig{
				MaxConcurrentInvocationsPerInstance: aws.Int64(int64(endpointCfg.MaxConcurrentInvocations)),
			},
			OutputConfig: asyncOutputConfig(endpointCfg),
		},
	}
	_, err := smc.metadataClient.CreateEndpointConfigWithContext(ctx, &endpointCfgInput)
	if err != nil {
		return fmt.Errorf("failed to create endpoint config on sagemaker: %w", classify(err))
	}
	return nil
}

func asyncOutputConfig(endpointCfg lib.SagemakerEndpointConfig) *sagemaker.AsyncInferenceOutputConfig {
	out := &sagemaker.AsyncInferenceOutputConfig{
		S3OutputPath: aws.String(endpointCfg.OutputPath),
	}
	if endpointCfg.FailurePath != "" {
		out.S3FailurePath = aws.String(endpointCfg.FailurePath)
	}
	if endpointCfg.SuccessTopic != "" || endpointCfg.ErrorTopic != "" {
		notification := &sagemaker.AsyncInferenceNotificationConfig{}
		if endpointCfg.SuccessTopic != "" {
			notification.SuccessTopic = aws.String(endpointCfg.SuccessTopic)
		}
		if endpointCfg.ErrorTopic != "" {
			notification.ErrorTopic = aws.String(endpointCfg.ErrorTopic)
		}
		out.NotificationConfig = notification
	}
	return out
}

func (smc SMClient) CreateEndpoint(ctx context.Context, endpoint lib.SagemakerEndpoint) error {
	endpointInput := sagemaker.CreateEndpointInput{
		EndpointName:       aws.String(endpoint.Name),
		EndpointConfigName: aws.String(endpoint.EndpointConfigName),
	}
	_, err := smc.metadataClient.CreateEndpointWithContext(ctx, &endpointInput)
	if err != nil {
		return fmt.Errorf("failed to create endpoint on sagemaker: %w", classify(err))
	}
	return nil
}

func (smc SMClient) UpdateEndpoint(ctx context.Context, endpoint lib.SagemakerEndpoint) error {
	endpointInput := sagemaker.UpdateEndpointInput{
		EndpointName:       aws.String(endpoint.Name),
		EndpointConfigName: aws.String(endpoint.EndpointConfigName),
	}
	_, err := smc.metadataClient.UpdateEndpointWithContext(ctx, &endpointInput)
	if err != nil {
		return fmt.Errorf("failed to update endpoint on sagemaker: %w", classify(err))
	}
	return nil
}

// AwaitInService polls until the endpoint settles. The first check happens
// immediately, so an endpoint that is already InService returns without any
// delay, and timeout=0 degrades to exactly one check.
func (smc SMClient) AwaitInService(ctx context.Context, endpointName string, timeout time.Duration) (lib.EndpointStatus, error) {
	deadline := smc.clock.Now().Add(timeout)
	for {
		status, reason, err := smc.describeEndpoint(ctx, endpointName)
		if err != nil {
			return "", err
		}
		switch status {
		case lib.EndpointInService:
			return status, nil
		case lib.EndpointFailed:
			return status, &lib.ProvisioningFailure{EndpointName: endpointName, Reason: reason}
		case lib.EndpointDeleting, lib.EndpointOutOfService:
			return status, fmt.Errorf("endpoint '%s' is %s, will never come in service", endpointName, status)
		}
		if !smc.clock.Now().Before(deadline) {
			return status, fmt.Errorf("%w: endpoint '%s' still %s after %v", lib.ErrTimeout, endpointName, status, timeout)
		}
		smc.logger.Info("waiting for endpoint to come in service",
			zap.String("endpoint", endpointName), zap.String("status", string(status)))
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-smc.clock.After(smc.args.EndpointPollInterval):
		}
	}
}

func getImage(framework, version, region string) (string, error) {
	url, ok := imageURIs[region][framework][version]
	if !ok {
		return "", fmt.Errorf("could not find image for framework '%s' version '%s' in region '%s'", framework, version, region)
	}
	return url, nil
}
