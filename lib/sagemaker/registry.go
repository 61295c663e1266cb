package sagemaker

import "fmt"

type Model struct {
	Name             string `db:"name"`
	Version          string `db:"version"`
	Task             string `db:"task"`
	Framework        string `db:"framework"`
	FrameworkVersion string `db:"framework_version"`
	ArtifactPath     string `db:"artifact_path"`
	HubModelId       string `db:"hub_model_id"`
	Active           bool   `db:"active"`
	LastModified     int64  `db:"last_modified"`
}

// Env returns the environment variables the serving container needs to load
// this model. Models pulled from the hub carry HF_MODEL_ID instead of a
// model artifact.
func (m Model) Env() map[string]string {
	env := map[string]string{
		"HF_TASK": m.Task,
	}
	if m.HubModelId != "" {
		env["HF_MODEL_ID"] = m.HubModelId
	}
	return env
}

type SagemakerHostedModel struct {
	SagemakerModelName string `db:"sagemaker_model_name"`
	ModelName          string `db:"model_name"`
	ModelVersion       string `db:"model_version"`
	ContainerHostname  string `db:"container_hostname"`
}

type SagemakerEndpointConfig struct {
	Name          string `db:"name"`
	VariantName   string `db:"variant_name"`
	ModelName     string `db:"model_name"`
	InstanceType  string `db:"instance_type"`
	InstanceCount uint   `db:"instance_count"`
	// Upper bound on in-flight async invocations each instance accepts before
	// the service starts queueing (and eventually throttling) submissions.
	MaxConcurrentInvocations uint `db:"max_concurrent_invocations"`
	// S3 prefix where the service writes results of async invocations.
	OutputPath string `db:"output_path"`
	// Optional S3 prefix for failure payloads. When empty, failures land
	// under OutputPath as well.
	FailurePath string `db:"failure_path"`
	// Optional SNS topics for completion events; empty means poll-only.
	SuccessTopic string `db:"success_topic"`
	ErrorTopic   string `db:"error_topic"`
}

type SagemakerEndpoint struct {
	Name               string `db:"name"`
	EndpointConfigName string `db:"endpoint_config_name"`
	Active             bool   `db:"active"`
}

type EndpointStatus string

const (
	EndpointCreating     EndpointStatus = "Creating"
	EndpointInService    EndpointStatus = "InService"
	EndpointUpdating     EndpointStatus = "Updating"
	EndpointDeleting     EndpointStatus = "Deleting"
	EndpointFailed       EndpointStatus = "Failed"
	EndpointOutOfService EndpointStatus = "OutOfService"
)

// Terminal reports whether the endpoint will not transition further on its
// own. Deleting is not terminal - the endpoint disappears afterwards.
func (s EndpointStatus) Terminal() bool {
	return s == EndpointInService || s == EndpointFailed || s == EndpointOutOfService
}

// InvocationToken is the receipt returned by an async submission. The output
// location is where the service will eventually write the result; the failure
// location (when the endpoint config declares a failure path) is where an
// error payload lands instead.
type InvocationToken struct {
	InferenceId     string `db:"inference_id"`
	EndpointName    string `db:"endpoint_name"`
	OutputLocation  string `db:"output_location"`
	FailureLocation string `db:"failure_location"`
}

type ResultStatus uint8

const (
	ResultPending ResultStatus = iota
	ResultSucceeded
	ResultFailed
)

func (s ResultStatus) String() string {
	switch s {
	case ResultPending:
		return "Pending"
	case ResultSucceeded:
		return "Succeeded"
	case ResultFailed:
		return "Failed"
	default:
		return fmt.Sprintf("ResultStatus(%d)", uint8(s))
	}
}

// ResultState is the observed state of one async invocation. Payload is set
// only for Succeeded, FailurePayload only for Failed.
type ResultState struct {
	Status         ResultStatus
	Payload        []byte
	FailurePayload []byte
}

func GetContainerName(modelName, modelVersion string) string {
	return fmt.Sprintf("Container-%s-%s", modelName, modelVersion)
}
