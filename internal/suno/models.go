package suno

// Clip status values reported by the proxy.
const (
	StatusSubmitted = "submitted"
	StatusQueued    = "queued"
	StatusStreaming = "streaming"
	StatusComplete  = "complete"
	StatusError     = "error"
)

// Clip is a generated song as reported by the proxy. Fields the proxy
// omits are left at their zero value.
type Clip struct {
	ID                 string   `json:"id"`
	VideoURL           string   `json:"video_url"`
	AudioURL           string   `json:"audio_url"`
	ImageURL           string   `json:"image_url,omitempty"`
	ImageLargeURL      string   `json:"image_large_url,omitempty"`
	IsVideoPending     *bool    `json:"is_video_pending,omitempty"`
	MajorModelVersion  string   `json:"major_model_version"`
	ModelName          string   `json:"model_name"`
	Metadata           Metadata `json:"metadata"`
	Lyric              string   `json:"lyric,omitempty"`
	DisplayName        string   `json:"display_name"`
	Handle             string   `json:"handle"`
	IsHandleUpdated    bool     `json:"is_handle_updated"`
	AvatarImageURL     string   `json:"avatar_image_url"`
	IsFollowingCreator bool     `json:"is_following_creator"`
	UserID             string   `json:"user_id"`
	CreatedAt          string   `json:"created_at"`
	Status             string   `json:"status"`
	Title              string   `json:"title"`
	PlayCount          int      `json:"play_count"`
	UpvoteCount        int      `json:"upvote_count"`
	IsPublic           bool     `json:"is_public"`

	// The flat proxy responses repeat a few metadata fields at the top level.
	Tags                 string `json:"tags,omitempty"`
	Prompt               string `json:"prompt,omitempty"`
	GPTDescriptionPrompt string `json:"gpt_description_prompt,omitempty"`
}

// Ready reports whether the clip has audio that can be fetched.
func (c Clip) Ready() bool {
	return c.Status == StatusStreaming || c.Status == StatusComplete
}

// Failed reports whether the upstream gave up on the clip.
func (c Clip) Failed() bool {
	return c.Status == StatusError
}

// Metadata describes how a clip was generated.
type Metadata struct {
	Tags                 string  `json:"tags"`
	Prompt               string  `json:"prompt"`
	GPTDescriptionPrompt string  `json:"gpt_description_prompt"`
	Type                 string  `json:"type"`
	Duration             float64 `json:"duration"`
	RefundCredits        bool    `json:"refund_credits"`
	Stream               bool    `json:"stream"`
	ErrorType            string  `json:"error_type,omitempty"`
	ErrorMessage         string  `json:"error_message,omitempty"`
}

// GenerateRequest is the body of /api/generate.
type GenerateRequest struct {
	Prompt           string `json:"prompt"`
	MakeInstrumental bool   `json:"make_instrumental"`
	WaitAudio        bool   `json:"wait_audio"`
}

// CustomGenerateRequest is the body of /api/custom_generate. Prompt holds
// the lyrics.
type CustomGenerateRequest struct {
	Prompt           string `json:"prompt"`
	Tags             string `json:"tags"`
	Title            string `json:"title"`
	MakeInstrumental bool   `json:"make_instrumental"`
	WaitAudio        bool   `json:"wait_audio"`
}

// ExtendRequest is the body of /api/extend_audio.
type ExtendRequest struct {
	AudioID    string  `json:"audio_id"`
	Prompt     string  `json:"prompt,omitempty"`
	ContinueAt float64 `json:"continue_at,omitempty"`
	Title      string  `json:"title,omitempty"`
	Tags       string  `json:"tags,omitempty"`
}

// ConcatRequest is the body of /api/concat.
type ConcatRequest struct {
	ClipID string `json:"clip_id"`
}

// Quota is the account usage reported by /api/get_limit.
type Quota struct {
	CreditsLeft  int    `json:"credits_left"`
	Period       string `json:"period"`
	MonthlyLimit int    `json:"monthly_limit"`
	MonthlyUsage int    `json:"monthly_usage"`
}

// IDs returns the identifiers of clips in order.
func IDs(clips []Clip) []string {
	ids := make([]string, 0, len(clips))
	for _, clip := range clips {
		ids = append(ids, clip.ID)
	}

	return ids
}
