package sagemaker

// Hugging Face deep learning container images for inference, keyed by
// region -> framework -> framework version. The account (763104351884) hosts
// AWS's managed DLC registry in every commercial region.
var imageURIs = map[string]map[string]map[string]string{
	"us-east-1": {
		"huggingface": {
			"4.12.3": "763104351884.dkr.ecr.us-east-1.amazonaws.com/huggingface-pytorch-inference:1.9.1-transformers4.12.3-cpu-py38-ubuntu20.04",
			"4.17.0": "763104351884.dkr.ecr.us-east-1.amazonaws.com/huggingface-pytorch-inference:1.10.2-transformers4.17.0-cpu-py38-ubuntu20.04",
		},
	},
	"us-west-2": {
		"huggingface": {
			"4.12.3": "763104351884.dkr.ecr.us-west-2.amazonaws.com/huggingface-pytorch-inference:1.9.1-transformers4.12.3-cpu-py38-ubuntu20.04",
			"4.17.0": "763104351884.dkr.ecr.us-west-2.amazonaws.com/huggingface-pytorch-inference:1.10.2-transformers4.17.0-cpu-py38-ubuntu20.04",
		},
	},
	"eu-west-1": {
		"huggingface": {
			"4.12.3": "763104351884.dkr.ecr.eu-west-1.amazonaws.com/huggingface-pytorch-inference:1.9.1-transformers4.12.3-cpu-py38-ubuntu20.04",
			"4.17.0": "763104351884.dkr.ecr.eu-west-1.amazonaws.com/huggingface-pytorch-inference:1.10.2-transformers4.17.0-cpu-py38-ubuntu20.04",
		},
	},
	"ap-south-1": {
		"huggingface": {
			"4.12.3": "763104351884.dkr.ecr.ap-south-1.amazonaws.com/huggingface-pytorch-inference:1.9.1-transformers4.12.3-cpu-py38-ubuntu20.04",
			"4.17.0": "763104351884.dkr.ecr.ap-south-1.amazonaws.com/huggingface-pytorch-inference:1.10.2-transformers4.17.0-cpu-py38-ubuntu20.04",
		},
	},
}
