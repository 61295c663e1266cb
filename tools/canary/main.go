package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/alexflint/go-arg"

	"saffron/controller/deployment"
	"saffron/controller/inference"
	lib "saffron/lib/sagemaker"
	"saffron/lib/sentiment"
	"saffron/tier"
)

// The probe set with the labels a healthy sentiment endpoint must produce.
var probes = sentiment.Request{Inputs: []string{
	"I like you. I love you",
	"This is sad",
	"am so happy that i want to cry",
	"async endpoints are awesome",
}}

var wantLabels = []string{"POS", "NEG", "POS", "NEU"}

type CanaryArgs struct {
	EndpointName  string        `arg:"--endpoint,env:CANARY_ENDPOINT" json:"endpoint,omitempty"`
	ResultTimeout time.Duration `arg:"--result-timeout,env:CANARY_RESULT_TIMEOUT" default:"5m" json:"result_timeout,omitempty"`
	DeployTimeout time.Duration `arg:"--deploy-timeout,env:CANARY_DEPLOY_TIMEOUT" default:"15m" json:"deploy_timeout,omitempty"`
	// Full cycle: deploy a fresh hub model, probe it, and tear everything
	// down again. Without it the canary probes an existing endpoint.
	FullCycle  bool   `arg:"--full-cycle" json:"full_cycle,omitempty"`
	HubModelId string `arg:"--hub-model,env:CANARY_HUB_MODEL" default:"finiteautomata/beto-sentiment-analysis" json:"hub_model_id,omitempty"`
}

func main() {
	var flags struct {
		tier.TierArgs
		CanaryArgs
	}
	arg.MustParse(&flags)
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if err := flags.TierArgs.Valid(); err != nil {
		panic(fmt.Errorf("invalid tier args: %v", err))
	}
	t, err := tier.CreateFromArgs(&flags.TierArgs)
	if err != nil {
		panic(fmt.Errorf("failed to setup tier connectors: %v", err))
	}

	// os.Exit skips deferred functions, so the full-cycle teardown lives
	// behind run(); a failed probe must still release the endpoint.
	if err := run(context.Background(), t, flags.CanaryArgs); err != nil {
		log.Printf("canary failed: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, t tier.Tier, flags CanaryArgs) error {
	endpointName := flags.EndpointName
	if endpointName == "" {
		endpointName = t.ModelStore.EndpointName()
	}

	if flags.FullCycle {
		log.Printf("deploying canary model to endpoint [%s]", endpointName)
		_, err := deployment.Deploy(ctx, t, deployment.DeployRequest{
			Model: lib.Model{
				Name:             "canary-sentiment",
				Version:          time.Now().Format("20060102150405"),
				Task:             "text-classification",
				Framework:        "huggingface",
				FrameworkVersion: "4.12.3",
				HubModelId:       flags.HubModelId,
			},
			EndpointName: endpointName,
			AwaitTimeout: flags.DeployTimeout,
		})
		if err != nil {
			return fmt.Errorf("canary deploy failed: %v", err)
		}
		defer func() {
			log.Printf("tearing down canary endpoint [%s]", endpointName)
			if err := deployment.Teardown(ctx, t, endpointName); err != nil {
				log.Printf("canary teardown failed: %v", err)
			}
		}()
	}

	status, err := t.SagemakerClient.GetEndpointStatus(ctx, endpointName)
	if err != nil {
		return fmt.Errorf("failed to check endpoint: %v", err)
	}
	if status != lib.EndpointInService {
		return fmt.Errorf("endpoint [%s] is %s, not InService", endpointName, status)
	}

	log.Printf("submitting %d probe inputs", len(probes.Inputs))
	token, err := inference.SubmitInputs(ctx, t, endpointName, probes)
	if err != nil {
		return fmt.Errorf("canary submit failed: %v", err)
	}
	log.Printf("awaiting result at %s", token.OutputLocation)
	state, err := inference.AwaitResult(ctx, t, token, flags.ResultTimeout)
	if err != nil {
		return fmt.Errorf("canary result failed: %v", err)
	}
	preds, err := sentiment.Decode(state.Payload, len(probes.Inputs))
	if err != nil {
		return fmt.Errorf("canary payload malformed: %v", err)
	}
	for i, p := range preds {
		if p.Label != wantLabels[i] {
			return fmt.Errorf("probe %d: got label %s (score %f), want %s", i, p.Label, p.Score, wantLabels[i])
		}
		log.Printf("probe %d: %s (score %f)", i, p.Label, p.Score)
	}
	log.Printf("canary ok: %d/%d probes labelled as expected", len(preds), len(probes.Inputs))
	return nil
}
