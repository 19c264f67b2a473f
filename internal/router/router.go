package router

import (
	"context"
	"fmt"

	"gemini-relay/internal/models"
	"gemini-relay/internal/provider"
)

// Router dispatches unified requests to the appropriate provider.
type Router struct {
	registry *provider.Registry
}

// New constructs a router backed by the provided registry.
func New(registry *provider.Registry) *Router {
	return &Router{
		registry: registry,
	}
}

// Chat routes a buffered chat completion request to the configured provider.
func (r *Router) Chat(ctx context.Context, req models.UnifiedChatRequest) (*models.UnifiedChatResponse, models.Model, error) {
	modelInfo, providerImpl, err := r.registry.LookupModel(req.Model)
	if err != nil {
		return nil, models.Model{}, err
	}

	sanitisedReq := req
	sanitisedReq.Model = modelInfo.ID
	sanitisedReq.Options = cloneOptions(req.Options)

	resp, err := providerImpl.Chat(ctx, sanitisedReq)
	if err != nil {
		return nil, models.Model{}, fmt.Errorf("provider %s chat request: %w", providerImpl.Name(), err)
	}
	return resp, modelInfo, nil
}

// ChatStream routes a streaming chat completion to the configured provider,
// which delivers frames on w.
func (r *Router) ChatStream(ctx context.Context, req models.UnifiedChatRequest, w provider.FrameWriter) (models.Model, error) {
	modelInfo, providerImpl, err := r.registry.LookupModel(req.Model)
	if err != nil {
		return models.Model{}, err
	}

	sanitisedReq := req
	sanitisedReq.Model = modelInfo.ID
	sanitisedReq.Options = cloneOptions(req.Options)

	if err := providerImpl.ChatStream(ctx, sanitisedReq, w); err != nil {
		return models.Model{}, fmt.Errorf("provider %s stream request: %w", providerImpl.Name(), err)
	}
	return modelInfo, nil
}

func cloneOptions(options map[string]any) map[string]any {
	if len(options) == 0 {
		return nil
	}
	out := make(map[string]any, len(options))
	for k, v := range options {
		out[k] = v
	}
	return out
}
