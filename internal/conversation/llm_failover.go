package conversation

import (
	"context"

	"github.com/clinicdesk/clinicdesk/pkg/logging"
)

// FailoverLLMClient wraps a primary LLM client with a secondary provider.
// If the primary fails the request is retried against the secondary.
type FailoverLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
}

// NewFailoverLLMClient creates a failover-enabled LLM client. If secondary
// is nil only the primary is used.
func NewFailoverLLMClient(primary, secondary LLMClient, logger *logging.Logger) *FailoverLLMClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverLLMClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func (c *FailoverLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting secondary",
		"error", err.Error(),
		"secondary_available", c.secondary != nil,
	)

	if c.secondary == nil {
		return LLMResponse{}, err
	}

	secondResp, secondErr := c.secondary.Complete(ctx, req)
	if secondErr != nil {
		c.logger.Error("secondary LLM also failed",
			"primary_error", err.Error(),
			"secondary_error", secondErr.Error(),
		)
		return LLMResponse{}, secondErr
	}

	c.logger.Info("secondary LLM succeeded after primary failure")
	return secondResp, nil
}
