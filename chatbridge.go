// Package chatbridge connects chat-platform messages to a generative model,
// keeping a bounded conversation per identity key and streaming replies
// back as in-place message edits.
package chatbridge

import "time"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is a single entry in a conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Variant selects the model configuration a session is bound to.
type Variant int

const (
	VariantRegular Variant = iota
	VariantPro
)

func (v Variant) String() string {
	if v == VariantPro {
		return "pro"
	}
	return "regular"
}

// Usage holds token counts from the model response.
type Usage struct {
	PromptTokens   int `json:"prompt_tokens"`
	ResponseTokens int `json:"response_tokens"`
	TotalTokens    int `json:"total_tokens"`
	ThoughtTokens  int `json:"thought_tokens"`
}

// Result is a model answer with its token usage.
type Result struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Image is an inline attachment passed to a multimodal call.
type Image struct {
	Data     []byte
	MIMEType string
}

// Photo is one size variant of a photo attachment.
type Photo struct {
	FileID   string
	FileSize int
	Width    int
	Height   int
}

// Request is an inbound chat message, already decoded from the platform.
type Request struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Text      string
	Caption   string
	Photos    []Photo
	Received  time.Time
}

// LargestPhoto returns the photo variant with the biggest file size.
func (r *Request) LargestPhoto() (Photo, bool) {
	if len(r.Photos) == 0 {
		return Photo{}, false
	}
	best := r.Photos[0]
	for _, p := range r.Photos[1:] {
		if p.FileSize > best.FileSize {
			best = p
		}
	}
	return best, true
}

// MessageRef addresses a message the bot has sent.
type MessageRef struct {
	ChatID    int64
	MessageID int
}
