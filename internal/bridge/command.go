package bridge

import "ltxd/pkg/types"

// workerCommand is one line of the bridge→worker protocol.
type workerCommand struct {
	Command string         `json:"command"`
	Params  *commandParams `json:"params,omitempty"`
}

// commandParams mirrors the materialized generation parameters on the wire.
type commandParams struct {
	Prompt                string  `json:"prompt"`
	NegativePrompt        string  `json:"negative_prompt,omitempty"`
	Width                 int     `json:"width"`
	Height                int     `json:"height"`
	NumFrames             int     `json:"num_frames"`
	FPS                   int     `json:"fps"`
	Seed                  int64   `json:"seed"`
	NumInferenceSteps     int     `json:"num_inference_steps,omitempty"`
	GuidanceScale         float64 `json:"guidance_scale,omitempty"`
	OutputPath            string  `json:"output_path"`
	ModelRepo             string  `json:"model_repo"`
	Tiling                string  `json:"tiling,omitempty"`
	NoAudio               bool    `json:"no_audio,omitempty"`
	SaveAudioSeparately   bool    `json:"save_audio_separately,omitempty"`
	EnhancePrompt         bool    `json:"enhance_prompt,omitempty"`
	UseUncensoredEnhancer bool    `json:"use_uncensored_enhancer,omitempty"`
	// TopP and Temperature are distinct sampler knobs; they must never be
	// folded into one field.
	TopP          float64 `json:"top_p,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	Image         string  `json:"image,omitempty"`
	ImageStrength float64 `json:"image_strength,omitempty"`
}

// workerResponse is the single JSON line the worker emits per command.
type workerResponse struct {
	Success   bool   `json:"success"`
	VideoPath string `json:"video_path"`
	Seed      int64  `json:"seed"`
	Mode      string `json:"mode"`
	HasAudio  bool   `json:"has_audio"`
	Error     string `json:"error"`
	// Status is set by the ping command ("pong").
	Status string `json:"status"`
}

func buildCommandParams(req Request, p types.GenerationParameters, seed int64, outputPath, modelRepo string) *commandParams {
	return &commandParams{
		Prompt:                req.Prompt,
		NegativePrompt:        req.NegativePrompt,
		Width:                 p.Width,
		Height:                p.Height,
		NumFrames:             p.NumFrames,
		FPS:                   p.FPS,
		Seed:                  seed,
		NumInferenceSteps:     p.NumInferenceSteps,
		GuidanceScale:         p.GuidanceScale,
		OutputPath:            outputPath,
		ModelRepo:             modelRepo,
		Tiling:                p.Tiling,
		NoAudio:               p.NoAudio,
		SaveAudioSeparately:   p.SaveAudioSeparately,
		EnhancePrompt:         p.EnhancePrompt,
		UseUncensoredEnhancer: p.UseUncensoredEnhancer,
		TopP:                  p.TopP,
		Temperature:           p.Temperature,
		Image:                 p.Image,
		ImageStrength:         p.ImageStrength,
	}
}
