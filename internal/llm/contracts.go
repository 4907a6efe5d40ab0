package llm

import "context"

// Request is one text generation call.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// ImageRequest is one vision call over a local image file.
type ImageRequest struct {
	Prompt    string
	ImagePath string
	MaxTokens int
}

// Generator is the text/vision generation engine the pipeline depends on.
// Implementations return *common.ServiceError for HTTP-level failures so the
// retry client can classify them.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	DescribeImage(ctx context.Context, req ImageRequest) (string, error)
}
