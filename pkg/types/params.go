package types

// GenerationParameters are the user-tunable knobs for a single video
// generation. Zero values mean "use the default".
type GenerationParameters struct {
	// Number of denoising steps per stage.
	NumInferenceSteps int `json:"num_inference_steps,omitempty"`
	// Classifier-free guidance scale.
	GuidanceScale float64 `json:"guidance_scale,omitempty"`
	// Output width in pixels; coerced to a multiple of 64 at dispatch.
	Width int `json:"width,omitempty"`
	// Output height in pixels; coerced to a multiple of 64 at dispatch.
	Height int `json:"height,omitempty"`
	// Number of video frames to generate.
	NumFrames int `json:"num_frames,omitempty"`
	// Playback frame rate.
	FPS int `json:"fps,omitempty"`
	// Random seed. Nil means the bridge picks one and reports it back.
	Seed *int64 `json:"seed,omitempty"`
	// Nucleus sampling probability for the prompt enhancer.
	TopP float64 `json:"top_p,omitempty"`
	// Sampling temperature for the prompt enhancer. Distinct from TopP;
	// the two are never aliased onto one wire field.
	Temperature float64 `json:"temperature,omitempty"`
	// Optional conditioning image path (image-to-video).
	Image string `json:"image,omitempty"`
	// Conditioning strength when Image is set.
	ImageStrength float64 `json:"image_strength,omitempty"`
	// Enable audio-less generation.
	NoAudio bool `json:"no_audio,omitempty"`
	// Write the audio track to a separate file.
	SaveAudioSeparately bool `json:"save_audio_separately,omitempty"`
	// Ask the worker to run the Gemma prompt enhancer before generating.
	EnhancePrompt bool `json:"enhance_prompt,omitempty"`
	// Use the uncensored enhancer variant.
	UseUncensoredEnhancer bool `json:"use_uncensored_enhancer,omitempty"`
	// VAE tiling mode ("auto" lets the worker decide).
	Tiling string `json:"tiling,omitempty"`
}

// DefaultParameters returns the parameter set used when a request omits them.
func DefaultParameters() GenerationParameters {
	return GenerationParameters{
		NumInferenceSteps: 8,
		GuidanceScale:     1.0,
		Width:             512,
		Height:            512,
		NumFrames:         65,
		FPS:               24,
		Tiling:            "auto",
	}
}
