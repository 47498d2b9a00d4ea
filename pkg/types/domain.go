package types

// DeviceInfo describes the compute device selected at startup.
type DeviceInfo struct {
	// Device kind: cpu or cuda.
	// example: cpu
	Kind string `json:"kind" example:"cpu"`
	// Processor or accelerator name.
	// example: AMD EPYC 7B13
	Name string `json:"name,omitempty" example:"AMD EPYC 7B13"`
	// Worker goroutines used for numeric work.
	// example: 8
	Workers int `json:"workers" example:"8"`
	// Notable SIMD features detected on the host.
	Features []string `json:"features,omitempty"`
}

// ModelInfo describes the loaded network and its weight artifact.
type ModelInfo struct {
	// Path of the weight artifact loaded at startup.
	// example: model_weights.safetensors
	Artifact string `json:"artifact" example:"model_weights.safetensors"`
	// Training run that produced the artifact, when recorded.
	// example: 3f1c2d8e-6c2b-4d7e-9f57-0d1b1a2c3e4f
	RunID string `json:"run_id,omitempty" example:"3f1c2d8e-6c2b-4d7e-9f57-0d1b1a2c3e4f"`
	// Side length of the square network input.
	// example: 224
	InputSize int `json:"input_size" example:"224"`
	// Class label table, indexed by class.
	Labels []string `json:"labels"`
	// Number of parameters in the network.
	// example: 6218
	NumParams int `json:"num_params" example:"6218"`
}
