// Package observers logs the lifecycle of a workflow run through eino
// callbacks.
package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
)

// Pipeline returns the handler attached to every run: step timing, prompt
// rendering and model usage with cost.
func Pipeline() einocb.Handler {
	return callbackHelper.NewHandlerHelper().
		Lambda(newNodeHandler()).
		Prompt(newPromptHandler()).
		ChatModel(newModelHandler()).
		Handler()
}
